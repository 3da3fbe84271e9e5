// Package protocol defines the JSON frames exchanged on a live call
// websocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calleq/calleq/pkg/core/types"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientUserTurn submits one user utterance for processing.
type ClientUserTurn struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	WantAudio bool   `json:"want_audio,omitempty"`
}

// ClientControl carries session-level operations.
type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// DecodeClientMessage parses one inbound frame into its typed form.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "user_turn":
		var msg ClientUserTurn
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid user_turn frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("user_turn.text is required", "text")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control frame", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case "end_session":
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ServerReady acknowledges the websocket attach for a session.
type ServerReady struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ServerResponse is the text result of one turn. When audio was requested
// and produced, a ServerResponseAudio frame follows it; text-then-audio
// order is guaranteed per turn.
type ServerResponse struct {
	Type     string                `json:"type"`
	Text     string                `json:"text"`
	Emotions []types.EmotionSignal `json:"emotions"`
	Context  []types.Passage       `json:"context"`
	Degraded []types.Stage         `json:"degraded"`
	HasAudio bool                  `json:"has_audio"`
}

// ServerResponseAudio carries the synthesized speech for the preceding
// response frame.
type ServerResponseAudio struct {
	Type     string `json:"type"`
	AudioB64 string `json:"audio_b64"`
}

// ServerWarning is a non-fatal notice (e.g. gateway draining).
type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerError reports a failed operation. Close signals that the server
// will drop the connection.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}

// ServerClosed acknowledges session teardown.
type ServerClosed struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func NewReady(sessionID string) ServerReady {
	return ServerReady{Type: "ready", SessionID: sessionID}
}

func NewResponse(result types.TurnResult) ServerResponse {
	emotions := result.Emotions
	if emotions == nil {
		emotions = []types.EmotionSignal{}
	}
	passages := result.Context
	if passages == nil {
		passages = []types.Passage{}
	}
	degraded := result.Degraded
	if degraded == nil {
		degraded = []types.Stage{}
	}
	return ServerResponse{
		Type:     "response",
		Text:     result.Text,
		Emotions: emotions,
		Context:  passages,
		Degraded: degraded,
		HasAudio: result.HasAudio,
	}
}

func NewWarning(code, message string) ServerWarning {
	return ServerWarning{Type: "warning", Code: code, Message: message}
}

func NewError(code, message string, close bool) ServerError {
	return ServerError{Type: "error", Code: code, Message: message, Close: close}
}

func NewClosed(sessionID string) ServerClosed {
	return ServerClosed{Type: "closed", SessionID: sessionID}
}
