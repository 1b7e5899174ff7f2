package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workflow-service/internal/api/dto"
	"github.com/spec-kit/workflow-service/internal/auth"
	"github.com/spec-kit/workflow-service/internal/service"
	apperrors "github.com/spec-kit/workflow-service/pkg/util/errorutil"
)

// QueuesHandler serves queue and aging endpoints.
type QueuesHandler struct {
	queries     *service.QueryService
	permissions *auth.PermissionChecker
}

// NewQueuesHandler constructs handler.
func NewQueuesHandler(queries *service.QueryService, permissions *auth.PermissionChecker) *QueuesHandler {
	return &QueuesHandler{queries: queries, permissions: permissions}
}

// List GET /queues. With mine=true only queues open to the caller's roles are listed.
func (h *QueuesHandler) List(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	mine := c.QueryBool("mine", false)
	queues := h.queries.Queues(c.Query("location_id"))
	out := make([]dto.QueueResponse, 0, len(queues))
	for i := range queues {
		if mine && !h.permissions.AllowedInQueue(actor, &queues[i]) {
			continue
		}
		out = append(out, dto.NewQueueResponse(&queues[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Items GET /queues/:id/items.
func (h *QueuesHandler) Items(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	page := parsePage(c)
	items, err := h.queries.QueueItems(c.UserContext(), c.Params("id"), page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workItemList(items), "page": pageMeta(page, len(items))})
}

// AgingSummary GET /aging/summary.
func (h *QueuesHandler) AgingSummary(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	summary, err := h.queries.AgingSummary(c.UserContext(), optionalQuery(c, "location_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgingSummaryResponse(summary)})
}
