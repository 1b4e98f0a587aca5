package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsaint1/TradeGPT/internal/domain"
	"github.com/drsaint1/TradeGPT/internal/monitor"
)

type staticStatus struct {
	status monitor.Status
}

func (s staticStatus) Status() monitor.Status { return s.status }

func TestGetStatus(t *testing.T) {
	h := NewStatusHandler(staticStatus{status: monitor.Status{
		Running:       true,
		IntervalMs:    15000,
		TriggersFired: 3,
	}})

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/stop-loss/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got monitor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Running)
	assert.EqualValues(t, 3, got.TriggersFired)
}

type staticPrice struct {
	price float64
	err   error
}

func (s staticPrice) GetPrice(context.Context, string) (float64, error) {
	return s.price, s.err
}

func TestGetPrice(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewPriceHandler(staticPrice{price: 42.5}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/prices/{symbol}", h.GetPrice)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices/eth", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ETH", resp["symbol"])
	assert.Equal(t, 42.5, resp["price"])
}

func TestGetPriceUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewPriceHandler(staticPrice{err: domain.ErrSymbolUnavailable}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/prices/{symbol}", h.GetPrice)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices/NOPE", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
