package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/service"
)

func TestRespondWithServiceError(t *testing.T) {
	h := NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"validation", service.ErrNameRequired, http.StatusBadRequest, `{"error":"name_required"}`},
		{"rejected with fields", service.ErrInsufficientAvailable.With("available_kobo", 10), http.StatusUnprocessableEntity,
			`{"error":"insufficient_available","available_kobo":10}`},
		{"not found", service.ErrUserNotFound, http.StatusNotFound, `{"error":"user_not_found"}`},
		{"conflict", service.ErrIdempotencyKeyConflict, http.StatusConflict, `{"error":"idempotency_key_reused_with_different_payload"}`},
		{"invariant", fmt.Errorf("post journal: %w", domain.ErrInvariant), http.StatusInternalServerError, `{"error":"invariant_violation"}`},
		{"other", fmt.Errorf("connection reset"), http.StatusInternalServerError, `{"error":"internal_error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.respondWithServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}
