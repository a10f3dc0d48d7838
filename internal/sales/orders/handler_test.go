package orders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(repo *mockRepository, stock *mockStock) http.Handler {
	svc := NewService(repo, stock, testLogger())
	h := NewHandler(testLogger(), svc)
	r := chi.NewRouter()
	r.Route("/orders", func(r chi.Router) { h.MountRoutes(r) })
	return r
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateAndShow(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, &mockStock{})

	rr := doRequest(h, http.MethodPost, "/orders/", validCreate)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created SalesOrder
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, StatusDraft, created.Status)

	rr = doRequest(h, http.MethodGet, "/orders/1/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"allowed_transitions":["confirmed","cancelled"]`)
}

func TestHandlerCreateRejectsMalformed(t *testing.T) {
	h := newTestHandler(newMockRepository(), &mockStock{})
	rr := doRequest(h, http.MethodPost, "/orders/", `{"currency":"USD"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerTransitionStatusCodes(t *testing.T) {
	repo := newMockRepository()
	stock := &mockStock{result: StockAdjustment{Applied: true}}
	h := newTestHandler(repo, stock)
	seedOrder(repo, StatusDraft, line(1, "2"))

	rr := doRequest(h, http.MethodPost, "/orders/1/status", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result TransitionResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.StockAdjustmentApplied)
	assert.Equal(t, StatusConfirmed, result.NewStatus)

	rr = doRequest(h, http.MethodPost, "/orders/1/status", `{"status":"draft"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(h, http.MethodPatch, "/orders/1/", `{"lines":[{"item_id":1,"quantity":1,"uom":"EA"}]}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(h, http.MethodDelete, "/orders/1/", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(h, http.MethodPost, "/orders/42/status", `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(h, http.MethodGet, "/orders/abc/", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerProgressAndList(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, &mockStock{})
	l := line(1, "4")
	l.BilledQty = dec("2")
	seedOrder(repo, StatusConfirmed, l)

	rr := doRequest(h, http.MethodGet, "/orders/1/progress", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"billed_percent":"0.5"`)

	rr = doRequest(h, http.MethodGet, "/orders/?status=confirmed&page=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":1`)

	rr = doRequest(h, http.MethodGet, "/orders/?customer_id=x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerDeleteDraft(t *testing.T) {
	repo := newMockRepository()
	h := newTestHandler(repo, &mockStock{})
	seedOrder(repo, StatusDraft, line(1, "1"))

	rr := doRequest(h, http.MethodDelete, "/orders/1/", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, repo.orders)
}
