package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/service"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateMerchantHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMerchantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.CreateMerchant(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) CreatePaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	key := idempotencyKey(r)
	if key == "" {
		h.respondWithServiceError(w, r, service.ErrIdempotencyKeyRequired)
		return
	}
	var req models.CreatePaymentIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	rep, err := h.service.CreatePaymentIntent(r.Context(), key, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithReplay(w, rep)
}

func (h *Handler) GetPaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetPaymentIntent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ProviderWebhookHandler(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, store.ProviderStream)
}

func (h *Handler) TransferWebhookHandler(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, store.TransferStream)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, stream store.Stream) {
	var req models.WebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.IngestEvent(r.Context(), stream, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ProcessProviderEventsHandler(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, store.ProviderStream)
}

func (h *Handler) ProcessTransferEventsHandler(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, store.TransferStream)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, stream store.Stream) {
	resp, err := h.service.ProcessEvents(r.Context(), stream)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ReleaseHandler(w http.ResponseWriter, r *http.Request) {
	var req models.MerchantAmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.Release(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) SettleHandler(w http.ResponseWriter, r *http.Request) {
	var req models.MerchantAmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.Settle(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListDisputesHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListDisputes(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) QuoteFeesHandler(w http.ResponseWriter, r *http.Request) {
	var req models.FeeQuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.QuoteFees(req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) BalancesHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Balances(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Balance(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) JournalsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.service.Journals(r.Context(), q.Get("ref_type"), q.Get("ref_id"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) FundWalletHandler(w http.ResponseWriter, r *http.Request) {
	var req models.FundWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.FundWallet(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	key := idempotencyKey(r)
	if key == "" {
		h.respondWithServiceError(w, r, service.ErrIdempotencyKeyRequired)
		return
	}
	var req models.CreateTransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	rep, err := h.service.CreateTransfer(r.Context(), key, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithReplay(w, rep)
}

func (h *Handler) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListTransfers(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetTransfer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) SubmitTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitTransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.SubmitTransfer(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ProviderQueryHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProviderQueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	resp, err := h.service.ProviderQueryTransfer(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// PollTransfersHandler takes an optional {limit, results} body; results maps
// transfer ids to the outcome the provider would report.
func (h *Handler) PollTransfersHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PollRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	for _, outcome := range req.Results {
		if !service.ValidOutcome(outcome) {
			h.respondWithServiceError(w, r, service.ErrInvalidProviderResult)
			return
		}
	}
	resp, err := h.service.PollUnknownTransfers(r.Context(), req.Limit, service.OutcomeMap(req.Results))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}
