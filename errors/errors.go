package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound             = fmt.Errorf("entity not found")
	ErrInvalidParticipants  = fmt.Errorf("invalid conversation participants")
	ErrAuthorNotParticipant = fmt.Errorf("author is not a conversation participant")
	ErrInvalidPayload       = fmt.Errorf("payload does not match message kind")
	ErrForbidden            = fmt.Errorf("operation forbidden")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrDeliveryTimeout      = fmt.Errorf("delivery attempt timed out")
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrEmptyWords           = fmt.Errorf("no censored words have been found")
)

// MapToHTTPStatus translates domain sentinels to transport status codes.
// Wrapped errors are matched with errors.Is so call sites are free to
// add context with %w.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidParticipants), errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrAuthorNotParticipant):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
