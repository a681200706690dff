package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/service"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"

	maxBodyBytes = 1 << 20
)

var errInvalidJSON = errors.New("invalid_json")

type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

func NewHandler(svc *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: svc, logger: logger}
}

// RouterConfig tunes the transport only.
type RouterConfig struct {
	// WebhookRateLimit is requests per second per client on event intake; 0 disables it.
	WebhookRateLimit float64
}

// NewRouter mounts every operation under /api/v1 next to /health and /metrics.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(instrument)

	v1.HandleFunc("/merchants", h.CreateMerchantHandler).Methods(http.MethodPost)
	v1.HandleFunc("/payment_intents", h.CreatePaymentIntentHandler).Methods(http.MethodPost)
	v1.HandleFunc("/payment_intents/{id}", h.GetPaymentIntentHandler).Methods(http.MethodGet)
	v1.HandleFunc("/release", h.ReleaseHandler).Methods(http.MethodPost)
	v1.HandleFunc("/settle", h.SettleHandler).Methods(http.MethodPost)
	v1.HandleFunc("/disputes", h.ListDisputesHandler).Methods(http.MethodGet)
	v1.HandleFunc("/fees/quote", h.QuoteFeesHandler).Methods(http.MethodPost)
	v1.HandleFunc("/balances", h.BalancesHandler).Methods(http.MethodGet)
	v1.HandleFunc("/balances/{account}", h.BalanceHandler).Methods(http.MethodGet)
	v1.HandleFunc("/journals", h.JournalsHandler).Methods(http.MethodGet)

	v1.HandleFunc("/users", h.CreateUserHandler).Methods(http.MethodPost)
	v1.HandleFunc("/wallet/fund", h.FundWalletHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transfers", h.CreateTransferHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transfers", h.ListTransfersHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transfers/submit", h.SubmitTransferHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transfers/poll", h.PollTransfersHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transfers/{id}", h.GetTransferHandler).Methods(http.MethodGet)

	intake := http.Handler(http.HandlerFunc(h.ProviderWebhookHandler))
	transferIntake := http.Handler(http.HandlerFunc(h.TransferWebhookHandler))
	if cfg.WebhookRateLimit > 0 {
		rl := NewRateLimiter(cfg.WebhookRateLimit, max(1, int(cfg.WebhookRateLimit)))
		intake = rl.Limit(intake)
		transferIntake = rl.Limit(transferIntake)
	}
	v1.Handle("/provider/webhook", intake).Methods(http.MethodPost)
	v1.Handle("/provider/transfer_webhook", transferIntake).Methods(http.MethodPost)
	v1.HandleFunc("/provider/process", h.ProcessProviderEventsHandler).Methods(http.MethodPost)
	v1.HandleFunc("/provider/process_transfers", h.ProcessTransferEventsHandler).Methods(http.MethodPost)
	v1.HandleFunc("/provider/transfer_query", h.ProviderQueryHandler).Methods(http.MethodPost)

	return middleware.RequestID(middleware.Recoverer(RequestLogger(h.logger)(r)))
}

// decodeJSON reads exactly one JSON object and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", errInvalidJSON)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return nil
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
}

// respondWithReplay writes a stored idempotent response exactly as first produced.
func respondWithReplay(w http.ResponseWriter, rep service.Replay) {
	w.Header().Set("Content-Type", "application/json")
	if rep.Replayed {
		w.Header().Set(replayedHeader, "true")
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(rep.Body)
}

// respondWithServiceError maps an operation error to its status and body.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	switch {
	case errors.As(err, &se):
		respondWithJSON(w, statusFor(se.Kind), se)
	case errors.Is(err, errInvalidJSON):
		respondWithError(w, http.StatusBadRequest, errInvalidJSON.Error())
	case errors.Is(err, domain.ErrInvariant):
		h.logger.Error("invariant violation", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondWithError(w, http.StatusInternalServerError, "invariant_violation")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal_error")
	}
}

func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindRejected:
		return http.StatusUnprocessableEntity
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
