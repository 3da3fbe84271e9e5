package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/calleq/calleq/pkg/core"
	"github.com/calleq/calleq/pkg/gateway/apierror"
)

func writeCoreErrorJSON(w http.ResponseWriter, coreErr *core.Error, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: coreErr})
}

func writeError(w http.ResponseWriter, err error) {
	coreErr, status := apierror.FromError(err)
	writeCoreErrorJSON(w, coreErr, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
