// Package apierror maps core errors onto HTTP responses.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/calleq/calleq/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError converts any error into the canonical envelope plus HTTP status.
func FromError(err error) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewAPIError("request timeout"), http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return core.NewAPIError("request cancelled"), http.StatusRequestTimeout
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		return &out, StatusFromType(coreErr.Type)
	}

	return core.NewAPIError("internal error"), http.StatusInternalServerError
}

// StatusFromType maps an error type to its HTTP status code.
func StatusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrSessionNotFound:
		return http.StatusNotFound
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrOverloaded:
		return http.StatusServiceUnavailable
	case core.ErrClassifierUnavailable,
		core.ErrRetrieverUnavailable,
		core.ErrGenerationUnavailable,
		core.ErrSynthesisUnavailable:
		// Collaborator failures are handled by stage fallbacks and should
		// not normally reach the transport; if one does, it is a server
		// fault.
		return http.StatusBadGateway
	case core.ErrGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
