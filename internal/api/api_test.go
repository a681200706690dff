package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/ledgerops/internal/api"
	"github.com/punchamoorthee/ledgerops/internal/service"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

func newServer(t *testing.T, cfg api.RouterConfig) http.Handler {
	t.Helper()
	svc := service.New(store.NewMemory())
	require.NoError(t, svc.Bootstrap(context.Background()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.NewRouter(api.NewHandler(svc, logger), cfg)
}

func do(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:4711"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createMerchant(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(h, http.MethodPost, "/api/v1/merchants", `{"name":"Ada Stores"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["merchant_id"].(string)
}

func TestHealth(t *testing.T) {
	h := newServer(t, api.RouterConfig{})
	rec := do(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreatePaymentIntentIdempotency(t *testing.T) {
	h := newServer(t, api.RouterConfig{})
	m := createMerchant(t, h)
	body := `{"merchant_id":"` + m + `","amount_kobo":100000}`

	rec := do(h, http.MethodPost, "/api/v1/payment_intents", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "idempotency_key_required", decode(t, rec)["error"])

	key := map[string]string{"Idempotency-Key": "order-1"}
	first := do(h, http.MethodPost, "/api/v1/payment_intents", body, key)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := do(h, http.MethodPost, "/api/v1/payment_intents", body, key)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	rec = do(h, http.MethodPost, "/api/v1/payment_intents", `{"merchant_id":"`+m+`","amount_kobo":5}`, key)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "idempotency_key_reused_with_different_payload", decode(t, rec)["error"])

	id := decode(t, first)["payment_intent_id"].(string)
	rec = do(h, http.MethodGet, "/api/v1/payment_intents/"+id, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "created", decode(t, rec)["status"])
}

func TestRejectsMalformedBodies(t *testing.T) {
	h := newServer(t, api.RouterConfig{})

	for _, body := range []string{`{"name":"x","extra":1}`, `{"name":`, `{"name":"a"}{"name":"b"}`} {
		rec := do(h, http.MethodPost, "/api/v1/merchants", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "invalid_json", decode(t, rec)["error"])
	}
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	h := newServer(t, api.RouterConfig{})
	m := createMerchant(t, h)

	rec := do(h, http.MethodPost, "/api/v1/payment_intents", `{"merchant_id":"`+m+`","amount_kobo":100000}`,
		map[string]string{"Idempotency-Key": "k"})
	require.Equal(t, http.StatusCreated, rec.Code)
	pi := decode(t, rec)["payment_intent_id"].(string)

	event := `{"provider_event_id":"evt_1","type":"payment_succeeded","payload":{"payment_intent_id":"` + pi + `"}}`
	rec = do(h, http.MethodPost, "/api/v1/provider/webhook", event, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = do(h, http.MethodPost, "/api/v1/provider/webhook", event, nil)
	assert.JSONEq(t, `{"ok":true,"note":"duplicate_event_ignored"}`, rec.Body.String())

	rec = do(h, http.MethodPost, "/api/v1/provider/process", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"processed":1}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/v1/balances/merchant_payable_pending:"+m, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 97_388, decode(t, rec)["balance_kobo"])

	rec = do(h, http.MethodPost, "/api/v1/release", `{"merchant_id":"`+m+`","amount_kobo":100000}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"insufficient_pending","pending_kobo":97388}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/v1/journals?ref_type=payment&ref_id="+pi, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["journals"], 2)

	rec = do(h, http.MethodGet, "/api/v1/balances/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "account_not_found", decode(t, rec)["error"])
}

func TestTransferFlowOverHTTP(t *testing.T) {
	h := newServer(t, api.RouterConfig{})

	rec := do(h, http.MethodPost, "/api/v1/users", `{"name":"Tunde"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	user := decode(t, rec)["user_id"].(string)

	rec = do(h, http.MethodPost, "/api/v1/wallet/fund", `{"user_id":"`+user+`","amount_kobo":1000000}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h, http.MethodPost, "/api/v1/transfers",
		`{"user_id":"`+user+`","amount_kobo":500000,"bank_code":"058","bank_account":"0123456789"}`,
		map[string]string{"Idempotency-Key": "payout-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tr := decode(t, rec)
	id := tr["transfer_id"].(string)
	assert.EqualValues(t, 501_000, tr["total_held_kobo"])

	rec = do(h, http.MethodPost, "/api/v1/transfers/submit", `{"transfer_id":"`+id+`","mode":"unknown"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "unknown", decode(t, rec)["status"])

	rec = do(h, http.MethodPost, "/api/v1/transfers/poll", `{"results":{"`+id+`":"bogus"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/transfers/poll", `{"results":{"`+id+`":"credit_confirmed"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"polled":1,"generated_events":1,"escalated_manual_review":0}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/v1/transfers/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "credit_confirmed", decode(t, rec)["status"])

	rec = do(h, http.MethodGet, "/api/v1/transfers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["transfers"], 1)

	rec = do(h, http.MethodPost, "/api/v1/transfers/poll", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/transfers/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "transfer_not_found", decode(t, rec)["error"])
}

func TestWebhookRateLimit(t *testing.T) {
	h := newServer(t, api.RouterConfig{WebhookRateLimit: 1})
	event := `{"provider_event_id":"evt_rl","type":"transfer_submitted","payload":{}}`

	rec := do(h, http.MethodPost, "/api/v1/provider/transfer_webhook", event, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/provider/transfer_webhook", event, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decode(t, rec)["error"])

	// Other routes are not limited.
	rec = do(h, http.MethodGet, "/api/v1/disputes", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
