package chat

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/chat-relay/backend/internal/service/history"
	"github.com/zhouzirui/chat-relay/backend/internal/service/relay"
)

// Machine-readable error codes shared by every transport.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeSessionRequired  = "session_required"
	CodeStorageError     = "storage_error"
	CodeRelayUnavailable = "relay_unavailable"
	CodeRelayTimeout     = "relay_timeout"
	CodeRelayMalformed   = "relay_malformed"
	CodeInternal         = "internal_error"
)

// Failure describes how an error surfaces to a client.
type Failure struct {
	Status  int
	Code    string
	Message string
}

// Describe maps a pipeline error onto its HTTP status, code and client message. Internal
// details stay out of the message.
func Describe(err error) Failure {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return Failure{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, ErrSessionRequired):
		return Failure{Status: http.StatusBadRequest, Code: CodeSessionRequired, Message: "a session credential is required"}
	case errors.Is(err, history.ErrStorage):
		return Failure{Status: http.StatusInternalServerError, Code: CodeStorageError, Message: "failed to access message history"}
	}

	switch relay.KindOf(err) {
	case relay.KindTimeout:
		return Failure{Status: http.StatusInternalServerError, Code: CodeRelayTimeout, Message: "the assistant took too long to answer"}
	case relay.KindMalformed:
		return Failure{Status: http.StatusInternalServerError, Code: CodeRelayMalformed, Message: "the assistant returned an unreadable answer"}
	case relay.KindUnavailable:
		return Failure{Status: http.StatusInternalServerError, Code: CodeRelayUnavailable, Message: "the assistant is unavailable"}
	}

	return Failure{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error"}
}
