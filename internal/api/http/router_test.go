package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/workflow-service/internal/api/http/handlers"
	"github.com/spec-kit/workflow-service/internal/auth"
	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/observability"
	"github.com/spec-kit/workflow-service/internal/repository/memory"
	"github.com/spec-kit/workflow-service/internal/service"
	"github.com/spec-kit/workflow-service/internal/workflow"
)

const routerQueues = `
queues:
  - code: ENQ
    kind: case
    stage: enquiry
    location: MNG
    allowed_roles: [sales]
    sla_hours: 48
  - code: EST
    kind: case
    stage: estimation
    location: MNG
    allowed_roles: [estimator]
`

type stubPinger struct {
	enabled bool
	err     error
}

func (p stubPinger) Enabled() bool { return p.enabled }
func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	table := workflow.DefaultTransitionTable()
	queues, err := workflow.ParseQueues([]byte(routerQueues), table)
	require.NoError(t, err)
	router := workflow.NewQueueRouter(table, queues)

	wf := service.WorkflowDependencies{
		Store:      memory.NewStore(),
		Table:      table,
		Router:     router,
		Classifier: workflow.NewAgingClassifier(24 * time.Hour),
	}
	permissions := auth.NewPermissionChecker(router)
	tokens := auth.NewTokenManager("test-secret", "")
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("workflow-service", "test", deps),
		WorkItems:      handlers.NewWorkItemsHandler(service.NewWorkflowService(wf), service.NewQueryService(wf), permissions),
		Queues:         handlers.NewQueuesHandler(service.NewQueryService(wf), permissions),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, actor *domain.Actor, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if actor != nil {
		token, _, err := s.tokens.GenerateToken(actor.ID, actor.Roles, time.Minute)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "body has no data object: %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

var (
	salesRep  = &domain.Actor{ID: "sales-1", Roles: []string{"sales"}}
	estimator = &domain.Actor{ID: "est-1", Roles: []string{"estimator"}}
	customer  = &domain.Actor{ID: "cust-1", Roles: []string{domain.RoleCustomer}}
)

func TestRouter_CaseLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodPost, "/api/v1/work-items", salesRep, map[string]any{
		"kind": "case", "priority": "high", "title": "Pump enquiry", "location_id": "mng",
	})
	require.Equal(t, nethttp.StatusCreated, status, body)
	created := data(t, body)
	id := created["id"].(string)
	assert.Equal(t, "enquiry", created["stage"])
	assert.Equal(t, "mng-enq", created["queue_id"])
	assert.Regexp(t, `^MNG-\d{4}-0001$`, created["display_number"])

	status, body = srv.do(t, nethttp.MethodGet, "/api/v1/work-items/"+id+"/transitions", salesRep, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.ElementsMatch(t, []any{"estimation", "rejected", "on_hold"}, data(t, body)["targets"])

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/work-items/"+id+"/transitions", salesRep, map[string]any{
		"to_stage": "manufacturing",
	})
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/work-items/"+id+"/transitions", estimator, map[string]any{
		"to_stage": "estimation",
	})
	assert.Equal(t, nethttp.StatusForbidden, status, "estimators cannot pull from the enquiry queue")
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/work-items/"+id+"/transitions", salesRep, map[string]any{
		"to_stage": "estimation", "reason": "drawings attached",
	})
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, "mng-est", data(t, body)["queue_id"])

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/work-items/"+id+"/assignment", estimator, map[string]any{
		"assignee_id": estimator.ID,
	})
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Nil(t, data(t, body)["queue_id"])
	assert.Equal(t, estimator.ID, data(t, body)["assignee_id"])

	status, body = srv.do(t, nethttp.MethodDelete, "/api/v1/work-items/"+id+"/assignment", estimator, nil)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, "mng-est", data(t, body)["queue_id"])

	status, body = srv.do(t, nethttp.MethodGet, "/api/v1/work-items/"+id+"/history", salesRep, nil)
	require.Equal(t, nethttp.StatusOK, status)
	history := body["data"].([]any)
	require.Len(t, history, 4)
	first := history[0].(map[string]any)
	assert.Nil(t, first["from_stage"])
	assert.IsType(t, "", first["id"], "ids are strings")

	status, body = srv.do(t, nethttp.MethodGet, "/api/v1/queues/mng-est/items", estimator, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = srv.do(t, nethttp.MethodGet, "/api/v1/aging/summary?location_id=mng", salesRep, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, float64(1), data(t, body)["total"])
}

func TestRouter_NotesRespectVisibility(t *testing.T) {
	srv := newTestServer(t, nil)
	_, body := srv.do(t, nethttp.MethodPost, "/api/v1/work-items", customer, map[string]any{
		"kind": "case", "title": "Need a quote", "location_id": "MNG",
	})
	id := data(t, body)["id"].(string)

	status, body := srv.do(t, nethttp.MethodPost, "/api/v1/work-items/"+id+"/notes", salesRep, map[string]any{
		"text": "customer is price sensitive", "internal": true,
	})
	require.Equal(t, nethttp.StatusCreated, status, body)

	status, _ = srv.do(t, nethttp.MethodPost, "/api/v1/work-items/"+id+"/notes", customer, map[string]any{
		"text": "sneaky", "internal": true,
	})
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/work-items/"+id+"/notes", customer, map[string]any{
		"text": "any update?", "externally_visible": true,
	})
	require.Equal(t, nethttp.StatusCreated, status, body)

	_, staffView := srv.do(t, nethttp.MethodGet, "/api/v1/work-items/"+id+"/notes", salesRep, nil)
	_, customerView := srv.do(t, nethttp.MethodGet, "/api/v1/work-items/"+id+"/notes", customer, nil)
	assert.Len(t, staffView["data"], 3)
	assert.Len(t, customerView["data"], 2)

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/work-items/"+id+"/notes", salesRep, map[string]any{"text": "   "})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestRouter_ErrorsAndAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodGet, "/api/v1/work-items", nil, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = srv.do(t, nethttp.MethodGet, "/api/v1/work-items/nope", salesRep, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = srv.do(t, nethttp.MethodPost, "/api/v1/work-items", salesRep, map[string]any{"kind": "order", "title": "x", "location_id": "MNG"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Contains(t, body["error"].(map[string]any)["details"], "kind")

	status, _ = srv.do(t, nethttp.MethodGet, "/no-such-route", nil, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, map[string]handlers.Pinger{
		"postgres": stubPinger{enabled: false},
		"redis":    stubPinger{enabled: true},
	})
	status, body := srv.do(t, nethttp.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, nethttp.StatusOK, status)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "disabled", deps["postgres"])
	assert.Equal(t, "ok", deps["redis"])

	status, _ = srv.do(t, nethttp.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, nethttp.StatusOK, status)

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http_requests_total")

	failing := newTestServer(t, map[string]handlers.Pinger{"redis": stubPinger{enabled: true, err: errors.New("refused")}})
	status, body = failing.do(t, nethttp.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))
}
