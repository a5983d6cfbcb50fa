package updates

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/logger"
)

// internalErrorMessage hides storage and parsing details from clients.
const internalErrorMessage = "internal server error"

var (
	// errTooManyRequests is reported when the manifest rate limit is exhausted.
	errTooManyRequests = errors.New("too many requests")
	// errUnexpectedOutcome guards against outcome kinds the handler does not know.
	errUnexpectedOutcome = errors.New("unexpected resolution outcome")
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, update.ErrInvalidRequest),
		errors.Is(err, update.ErrMissingSigningKey),
		errors.Is(err, update.ErrUnsupportedOnProtocolV0),
		errors.Is(err, update.ErrMissingEmbeddedUpdateID):
		return http.StatusBadRequest
	case errors.Is(err, update.ErrUnsupportedRuntimeVersion),
		errors.Is(err, update.ErrBundleNotFound),
		errors.Is(err, update.ErrPlatformNotInBundle),
		errors.Is(err, update.ErrAssetNotFound),
		errors.Is(err, update.ErrRollbackNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": "..."} and logs server-side failures.
func writeError(ctx context.Context, w http.ResponseWriter, err error) int {
	status := statusFor(err)
	message := err.Error()

	switch {
	case status < http.StatusInternalServerError:
		logger.DebugKV(ctx, "Request rejected", "status", status, "error", err)
	case errors.Is(err, context.Canceled):
		logger.DebugKV(ctx, "Request cancelled by client", "error", err)

		message = internalErrorMessage
	default:
		logger.ErrorKV(ctx, "Request failed", "status", status, "error", err)

		message = internalErrorMessage
	}

	w.Header().Set(HeaderContentType, "application/json")
	w.WriteHeader(status)

	//nolint:errchkjson // Encoding a struct with one string field cannot fail.
	_ = json.NewEncoder(w).Encode(errorBody{Error: message})

	return status
}
