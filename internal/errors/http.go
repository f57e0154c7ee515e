package errors

import (
	"context"
	stderrors "errors"
	"net/http"
)

// Public user-facing messages. Raw upstream text is never surfaced.
const (
	msgInvalidRequest = "The request could not be processed. Please check the submitted details."
	msgUnauthorized   = "You are not signed in or your session has expired."
	msgNotFound       = "The requested item could not be found."
	msgDegraded       = "The scheduling assistant is temporarily unavailable. Your schedule was not changed; please try again shortly."
	msgRateLimited    = "The scheduling assistant is busy right now. Please try again in a few minutes."
	msgNeedsReview    = "We couldn't find a safe way to rearrange your day automatically. Please review this conflict manually."
	msgInternal       = "Something went wrong on our side. Your schedule was not changed."
)

// Describe maps err onto the HTTP status, code, public message and
// retryable flag returned to callers.
func Describe(err error) (status int, code Code, message string, retryable bool) {
	var val *ValidationError
	var guard *GuardrailViolationError
	var ext *ExternalServiceError

	switch {
	case stderrors.As(err, &val):
		return http.StatusBadRequest, val.Code, msgInvalidRequest, false
	case stderrors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized, msgUnauthorized, false
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound, CodeNotFound, msgNotFound, false
	case stderrors.As(err, &guard):
		return http.StatusUnprocessableEntity, guard.Code, msgNeedsReview, false
	case stderrors.As(err, &ext):
		if ext.IsRateLimited() {
			return http.StatusTooManyRequests, CodeUpstreamRateLimited, msgRateLimited, true
		}
		if ext.Retryable {
			return http.StatusServiceUnavailable, CodeUpstreamUnavailable, msgDegraded, true
		}
		return http.StatusInternalServerError, CodeUpstreamUnavailable, msgDegraded, false
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeUpstreamUnavailable, msgDegraded, true
	default:
		return http.StatusInternalServerError, CodeInternal, msgInternal, false
	}
}

// HTTPStatus returns only the status part of Describe.
func HTTPStatus(err error) int {
	status, _, _, _ := Describe(err)
	return status
}

// PublicMessage returns only the user-facing message part of Describe.
func PublicMessage(err error) string {
	_, _, msg, _ := Describe(err)
	return msg
}
