package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLocked = errors.New("locked")

func TestRespondErrorClassified(t *testing.T) {
	err := Classify(fmt.Errorf("update: %w", errLocked), Rule{Target: errLocked, Class: ErrConflict})

	rr := httptest.NewRecorder()
	RespondError(rr, err)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "update: locked")
	assert.ErrorIs(t, err, errLocked)
}

func TestRespondErrorUnknownHidesDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("db password leaked"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestClassifyFirstRuleWins(t *testing.T) {
	err := Classify(errLocked,
		Rule{Target: errLocked, Class: ErrUnprocessable},
		Rule{Target: errLocked, Class: ErrConflict},
	)
	assert.ErrorIs(t, err, ErrUnprocessable)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NoError(t, Classify(nil))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrValidation)
}

func TestIDParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders/12", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "12")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	id, err := IDParam(req, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	rctx.URLParams = chi.RouteParams{}
	rctx.URLParams.Add("id", "-1")
	_, err = IDParam(req, "id")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&per_page=abc", nil)
	assert.Equal(t, 3, QueryInt(req, "page", 1))
	assert.Equal(t, 20, QueryInt(req, "per_page", 20))
	assert.Equal(t, 7, QueryInt(req, "missing", 7))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(fmt.Errorf("wrap: %w", ErrConflict)))
	assert.True(t, IsClientError(Classify(errLocked, Rule{Target: errLocked, Class: ErrNotFound})))
	assert.False(t, IsClientError(errLocked))
}
