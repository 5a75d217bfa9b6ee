// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// RespondError is the fallback error responder. Domain handlers map their
// own sentinel errors first and delegate anything unrecognised here.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrTxConflict):
		Problem(w, http.StatusConflict, "Conflict", "the operation conflicted with a concurrent update, please retry")
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "the operation did not complete in time")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
