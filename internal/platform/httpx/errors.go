package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/branchdesk/internal/shared"
)

// RespondError maps domain errors to envelopes. Unmapped errors are logged and
// reported as a generic internal error without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		FailFields(w, http.StatusBadRequest, MsgValidationFailed, verr.Fields)
	case errors.Is(err, shared.ErrValidation):
		Fail(w, http.StatusBadRequest, MsgValidationFailed)
	case errors.Is(err, shared.ErrInvalidID):
		Fail(w, http.StatusBadRequest, MsgInvalidID)
	case errors.Is(err, shared.ErrUnauthorized):
		Fail(w, http.StatusUnauthorized, MsgUnauthorized)
	case errors.Is(err, shared.ErrForbidden):
		Fail(w, http.StatusForbidden, MsgForbidden)
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, MsgNotFound)
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		InternalError(w)
	}
}
