package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/askllm/services"
	"github.com/upb/askllm/utils"
)

// HandleServiceError maps domain errors to HTTP responses. The backend's own
// message is passed through in details.cause, never rewritten.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	var writeErr error

	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
			Details: details,
		})

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, err.Error(), details)

	case services.IsTimeoutError(err):
		writeErr = utils.WriteGatewayTimeout(w, err.Error(), details)

	case services.IsEmptyResponseError(err):
		// Nothing came back twice; the caller decides whether to retry
		writeErr = utils.WriteBadGateway(w, err.Error(), details)

	case services.IsExternalError(err):
		writeErr = utils.WriteBadGateway(w, err.Error(), details)

	case services.IsUnavailableError(err):
		writeErr = utils.WriteNotFound(w, err.Error())

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
