package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/api/http/handlers"
	"github.com/repaart/support-desk/internal/auth"
	"github.com/repaart/support-desk/internal/desk"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/feed"
	"github.com/repaart/support-desk/internal/observability"
	"github.com/repaart/support-desk/internal/repository/memory"
	"github.com/repaart/support-desk/internal/service"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type testServer struct {
	app   *fiber.App
	store *memory.Store
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memory.NewStore(500)
	dispatcher := events.NewInMemoryDispatcher(logger)
	changes := feed.NewMemoryFeed(feed.DefaultBuffer)
	feed.NewBridge(changes, logger).RegisterHandlers(dispatcher)

	supportService := service.NewSupportService(service.SupportDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	registry := desk.NewRegistry(desk.RegistryDependencies{
		Backend: supportService,
		Feed:    changes,
		Metrics: metrics,
		Logger:  logger,
	})
	t.Cleanup(registry.CloseAll)

	tokens := auth.NewTokenManager("test-secret", 10)
	token, _, err := tokens.GenerateToken(domain.Admin{UID: "admin-1", Email: "admin@repaart.es"}, domain.RoleAdmin)
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", okPinger{}, okPinger{}),
		Tickets:        handlers.NewTicketsHandler(supportService, domain.DefaultSLAThresholds, nil),
		Desks:          handlers.NewDesksHandler(registry, domain.DefaultSLAThresholds, logger),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, store: store, token: token}
}

func (s *testServer) seed() string {
	return s.store.SeedTicket(domain.Ticket{
		Subject:   "Pedido perdido",
		Message:   "No llegó",
		Email:     "rider@repaart.es",
		UID:       "rider-1",
		Category:  domain.TicketCategoryOperational,
		Urgency:   domain.TicketUrgencyHigh,
		Status:    domain.TicketStatusOpen,
		CreatedAt: time.Now().Add(-time.Hour),
	})
}

func (s *testServer) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	s := newTestServer(t)
	for _, target := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp, err := s.app.Test(httptest.NewRequest(nethttp.MethodGet, target, nil))
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusOK, resp.StatusCode, target)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.app.Test(httptest.NewRequest(nethttp.MethodGet, "/api/tickets", nil))
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
}

func TestTicketEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.seed()

	status, body := s.do(t, nethttp.MethodGet, "/api/tickets?tab=high", "")
	require.Equal(t, nethttp.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Len(t, data["filtered"], 1)
	assert.EqualValues(t, 1, data["metrics"].(map[string]any)["total"])

	status, _ = s.do(t, nethttp.MethodPatch, "/api/tickets/"+id+"/status", `{"status":"investigating"}`)
	assert.Equal(t, nethttp.StatusOK, status)

	status, body = s.do(t, nethttp.MethodGet, "/api/tickets/"+id+"/history", "")
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, nethttp.MethodPost, "/api/tickets/"+id+"/replies", `{"text":"Hola"}`)
	require.Equal(t, nethttp.StatusCreated, status)
	reply := body["data"].(map[string]any)
	assert.Equal(t, "pending_user", reply["ticket"].(map[string]any)["status"])
	assert.Equal(t, true, reply["email_sent"])

	status, _ = s.do(t, nethttp.MethodPatch, "/api/tickets/"+id+"/read", `{"read":false}`)
	assert.Equal(t, nethttp.StatusNoContent, status)

	status, body = s.do(t, nethttp.MethodDelete, "/api/tickets/"+id, "")
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["messages"])
}

func TestTicketErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	id := s.seed()

	status, body := s.do(t, nethttp.MethodGet, "/api/tickets/missing", "")
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

	status, body = s.do(t, nethttp.MethodPatch, "/api/tickets/"+id+"/status", `{"status":"archived"}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.NotNil(t, body["error"])

	status, _ = s.do(t, nethttp.MethodPost, "/api/tickets/reset", `{"confirm":"yes"}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	req := httptest.NewRequest(nethttp.MethodGet, "/api/tickets/export?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "tickets_export_")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Pedido perdido")
}

func TestResetCenter(t *testing.T) {
	s := newTestServer(t)
	s.seed()
	s.seed()

	status, body := s.do(t, nethttp.MethodPost, "/api/tickets/reset", `{"confirm":"RESET"}`)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 2, body["data"].(map[string]any)["tickets"])
}

func TestDeskSession(t *testing.T) {
	s := newTestServer(t)
	id := s.seed()

	status, body := s.do(t, nethttp.MethodPost, "/api/desks", "")
	require.Equal(t, nethttp.StatusCreated, status)
	deskID := body["data"].(map[string]any)["id"].(string)
	base := "/api/desks/" + deskID

	require.Eventually(t, func() bool {
		_, view := s.do(t, nethttp.MethodGet, base, "")
		data := view["data"].(map[string]any)
		return data["loading"] == false && len(data["tickets"].([]any)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	status, _ = s.do(t, nethttp.MethodPut, base+"/selection", `{"ticket_id":"`+id+`"}`)
	require.Equal(t, nethttp.StatusNoContent, status)
	status, body = s.do(t, nethttp.MethodPost, base+"/read/"+id, "")
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["read"])

	status, _ = s.do(t, nethttp.MethodPut, base+"/draft", `{"text":"Nota interna","internal":true}`)
	require.Equal(t, nethttp.StatusNoContent, status)

	status, body = s.do(t, nethttp.MethodPost, base+"/reply", "")
	require.Equal(t, nethttp.StatusCreated, status)
	assert.Equal(t, false, body["data"].(map[string]any)["email_sent"])

	status, _ = s.do(t, nethttp.MethodDelete, base, "")
	assert.Equal(t, nethttp.StatusNoContent, status)
	status, _ = s.do(t, nethttp.MethodGet, base, "")
	assert.Equal(t, nethttp.StatusNotFound, status)
}
