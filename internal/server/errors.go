package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"akashchat/pkg/chattypes"
)

// statusForError maps a turn error kind to an HTTP status code.
func statusForError(err error) int {
	switch chattypes.KindOf(err) {
	case chattypes.KindInputRejected, chattypes.KindUnsupportedModel:
		return http.StatusBadRequest
	case chattypes.KindTurnInProgress:
		return http.StatusConflict
	case chattypes.KindSearchFailure, chattypes.KindCompletionFailure:
		return http.StatusBadGateway
	case chattypes.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage returns client-facing text for err without internal details.
func userMessage(err error) string {
	switch chattypes.KindOf(err) {
	case chattypes.KindInputRejected:
		return "Please enter a message."
	case chattypes.KindSearchFailure:
		return "Web search failed. Please try again."
	case chattypes.KindCompletionFailure:
		return "The model did not finish its response. Please try again."
	case chattypes.KindUnsupportedModel:
		return "The selected model is not supported."
	case chattypes.KindTurnInProgress:
		return "A response is still being generated."
	case chattypes.KindConfiguration:
		return "The service is not configured for this request."
	default:
		return "Internal error."
	}
}

func errorPayload(err error) ErrorPayload {
	kind := chattypes.KindOf(err)
	return ErrorPayload{
		Kind:      kind,
		Message:   userMessage(err),
		Retryable: kind.Retryable(),
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusForError(err), gin.H{"error": errorPayload(err)})
}
