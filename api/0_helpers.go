package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/ledgerdb/api/apiindexv1"
	"github.com/fulldump/ledgerdb/database"
	"github.com/fulldump/ledgerdb/locks"
	"github.com/fulldump/ledgerdb/service"
)

var ErrUnavailable = errors.New("temporary unavailable")

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

func InterceptorUnavailable(db *database.Database) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {

			switch status := db.GetStatus(); status {
			case database.StatusOpening, database.StatusClosing, database.StatusCorrupted:
				box.SetError(ctx, fmt.Errorf("%w: %s", ErrUnavailable, status))
				return
			}
			next(ctx)
		}
	}
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		status, description := classify(ctx, err)
		w.WriteHeader(status)
		PrettyError{
			Message:     err.Error(),
			Description: description,
		}.MarshalTo(w)
	}
}

func classify(ctx context.Context, err error) (int, string) {

	var syntaxError *json.SyntaxError

	switch {
	case err == box.ErrResourceNotFound:
		return http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String())
	case err == box.ErrMethodNotAllowed:
		return http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method)
	case errors.Is(err, service.ErrorIndexNotFound), errors.Is(err, service.ErrorRecordNotFound):
		return http.StatusNotFound, "the requested index or record does not exist"
	case errors.Is(err, apiindexv1.ErrInvalidInput), errors.As(err, &syntaxError):
		return http.StatusBadRequest, "Malformed input"
	case errors.Is(err, ErrUnavailable), errors.Is(err, locks.ErrLockTimeout):
		return http.StatusServiceUnavailable, "the database is busy or not operating, retry later"
	}

	return http.StatusInternalServerError, "Unexpected error"
}
