package errx

import (
	"database/sql"
	"errors"
	"net/http"
)

// WrapStore maps durable store errors; a missing row becomes a 404 that still matches ErrNotFound.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return New(errors.Join(ErrNotFound, err), http.StatusNotFound, StoreNotFoundMessage)
	}
	return New(err, http.StatusInternalServerError, StoreErrorMessage)
}

// WrapUpstream marks failures of external services (LLM, retriever, logistics).
func WrapUpstream(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, UpstreamErrorMessage)
}
