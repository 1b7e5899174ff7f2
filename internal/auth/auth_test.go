package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	apperrors "github.com/spec-kit/workflow-service/pkg/util/errorutil"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "erp")
	token, expires, err := tm.GenerateToken("u-1", []string{"sales", "agent"}, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	actor := claims.Actor()
	assert.Equal(t, "u-1", actor.ID)
	assert.Equal(t, []string{"sales", "agent"}, actor.Roles)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("secret", "erp")

	other, _, err := NewTokenManager("other", "erp").GenerateToken("u-1", nil, time.Minute)
	require.NoError(t, err)
	_, err = tm.ParseToken(other)
	assert.Error(t, err, "wrong secret")

	foreign, _, err := NewTokenManager("secret", "crm").GenerateToken("u-1", nil, time.Minute)
	require.NoError(t, err)
	_, err = tm.ParseToken(foreign)
	assert.Error(t, err, "wrong issuer")

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "erp", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tm.ParseToken(anonymous)
	assert.Error(t, err, "missing subject")

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "erp", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tm.ParseToken(expired)
	assert.Error(t, err, "expired")
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "")
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/me", NewAuthMiddleware(tm).Handle, func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(actor.ID)
	})

	token, _, err := tm.GenerateToken("u-9", []string{"agent"}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-token", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

type queueMap map[string]*domain.Queue

func (m queueMap) Queue(id string) (*domain.Queue, bool) {
	q, ok := m[id]
	return q, ok
}

func TestPermissionChecker(t *testing.T) {
	checker := NewPermissionChecker(queueMap{
		"mng-est": {ID: "mng-est", AllowedRoles: []string{"estimator"}},
	})
	queued := "mng-est"
	owner := "u-1"

	inQueue := &domain.WorkItem{QueueID: &queued}
	assigned := &domain.WorkItem{AssigneeID: &owner}
	loose := &domain.WorkItem{}

	admin := domain.Actor{ID: "a", Roles: []string{domain.RoleAdmin}}
	estimator := domain.Actor{ID: "e", Roles: []string{"estimator"}}
	sales := domain.Actor{ID: "s", Roles: []string{"sales"}}
	assignee := domain.Actor{ID: owner, Roles: []string{"fitter"}}
	supervisor := domain.Actor{ID: "boss", Roles: []string{domain.RoleSupervisor}}
	agent := domain.Actor{ID: "ag", Roles: []string{domain.RoleAgent}}
	customer := domain.Actor{ID: "c", Roles: []string{domain.RoleCustomer}}

	tests := []struct {
		name  string
		actor domain.Actor
		op    Operation
		item  *domain.WorkItem
		want  bool
	}{
		{"admin transitions anything", admin, OpTransition, assigned, true},
		{"queue role may transition", estimator, OpTransition, inQueue, true},
		{"other role may not transition", sales, OpTransition, inQueue, false},
		{"queue role may claim", estimator, OpAssign, inQueue, true},
		{"assignee may transition", assignee, OpTransition, assigned, true},
		{"non-assignee may not", estimator, OpTransition, assigned, false},
		{"supervisor may reassign", supervisor, OpAssign, assigned, true},
		{"agent may act on loose item", agent, OpTransition, loose, true},
		{"sales may not act on loose item", sales, OpTransition, loose, false},
		{"customer may create", customer, OpCreate, nil, true},
		{"customer may comment", customer, OpAddNote, assigned, true},
		{"customer may not transition", customer, OpTransition, loose, false},
		{"customer may not read internal", customer, OpReadInternal, loose, false},
		{"staff may read internal", sales, OpReadInternal, loose, true},
		{"anonymous is refused", domain.Actor{}, OpRead, loose, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.Allowed(tt.actor, tt.op, tt.item))
		})
	}
}
