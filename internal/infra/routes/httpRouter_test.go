package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"transcript-relay/internal/domain/dto"
	Iservices "transcript-relay/internal/domain/interfaces/services"
	"transcript-relay/internal/infra/broadcast"
	"transcript-relay/internal/infra/handlers"
	"transcript-relay/internal/infra/logger"
	"transcript-relay/internal/infra/metrics"
)

type noopRelayService struct{}

func (noopRelayService) HandleMeetingStarted(dto.RTMSStarted) {}
func (noopRelayService) HandleMeetingStopped(dto.RTMSStopped) {}
func (noopRelayService) Shutdown(context.Context)             {}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	log := logger.NewLogger(context.Background(), "error", false)
	registry := prometheus.NewRegistry()
	hub := broadcast.NewHub(log, metrics.NewRelayMetrics(registry))

	var svc Iservices.IRelayService = noopRelayService{}
	router := mux.NewRouter()
	NewRoutes(router, handlers.NewRelayHandlers(log, svc), hub, registry).Init()
	return router
}

func TestRoutes_HealthCheck(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthCheck", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestRoutes_Metrics(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "relay_chunks_assembled_total")
}

func TestRoutes_WebhookRegistered(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Empty body is a decode error, not a missing route.
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
