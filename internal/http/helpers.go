package http

import (
	"net/http"

	"dinero/internal/core"
	applog "dinero/internal/log"
)

// writeJSON sends v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

// writeError logs err with the request logger and sends the mapped error
// response. Only unexpected failures are logged at error level; validation
// rejections stay at debug.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	kind := core.KindOf(err)

	args := []any{
		applog.FieldError, err.Error(),
		applog.FieldErrorKind, string(kind),
		applog.FieldOperation, operation,
		applog.FieldPath, r.URL.Path,
	}
	switch {
	case kind == core.KindInternal:
		logger.ErrorContext(ctx, "Request failed", args...)
	case core.IsRetryable(err):
		logger.WarnContext(ctx, "Store unavailable", append(args, "retryable", true)...)
	case core.IsValidation(err):
		logger.DebugContext(ctx, "Request rejected", args...)
	default:
		logger.InfoContext(ctx, "Request not satisfied", args...)
	}

	ErrorResponse(err).Write(w)
}
