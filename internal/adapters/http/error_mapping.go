package httpadapter

import (
	"net/http"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrContextNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNoModelAvailable),
		domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
