package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workflow-service/internal/api/dto"
	"github.com/spec-kit/workflow-service/internal/auth"
	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/service"
	apperrors "github.com/spec-kit/workflow-service/pkg/util/errorutil"
)

// WorkItemsHandler serves case and ticket endpoints.
type WorkItemsHandler struct {
	engine      *service.WorkflowService
	queries     *service.QueryService
	permissions *auth.PermissionChecker
}

// NewWorkItemsHandler constructs handler.
func NewWorkItemsHandler(engine *service.WorkflowService, queries *service.QueryService, permissions *auth.PermissionChecker) *WorkItemsHandler {
	return &WorkItemsHandler{engine: engine, queries: queries, permissions: permissions}
}

// Create POST /work-items.
func (h *WorkItemsHandler) Create(c *fiber.Ctx) error {
	actor, err := h.authorize(c, auth.OpCreate, nil)
	if err != nil {
		return err
	}
	var req dto.CreateWorkItemRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	item, err := h.engine.Create(c.UserContext(), service.CreateInput{
		Kind:        req.Kind,
		Priority:    req.Priority,
		Title:       req.Title,
		Description: req.Description,
		LocationID:  req.LocationID,
		DueAt:       req.DueAt,
	}, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewWorkItemResponse(item)})
}

// List GET /work-items.
func (h *WorkItemsHandler) List(c *fiber.Ctx) error {
	if _, err := h.authorize(c, auth.OpRead, nil); err != nil {
		return err
	}
	filter, page := parseWorkItemQuery(c)
	items, err := h.queries.List(c.UserContext(), filter, page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workItemList(items), "page": pageMeta(page, len(items))})
}

// Get GET /work-items/:id.
func (h *WorkItemsHandler) Get(c *fiber.Ctx) error {
	item, _, err := h.load(c, auth.OpRead)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkItemResponse(item)})
}

// AvailableTransitions GET /work-items/:id/transitions.
func (h *WorkItemsHandler) AvailableTransitions(c *fiber.Ctx) error {
	item, _, err := h.load(c, auth.OpRead)
	if err != nil {
		return err
	}
	targets, err := h.queries.AvailableTransitions(c.UserContext(), item.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"stage": item.Stage, "targets": targets}})
}

// Transition POST /work-items/:id/transitions.
func (h *WorkItemsHandler) Transition(c *fiber.Ctx) error {
	item, actor, err := h.load(c, auth.OpTransition)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ToStage == "" {
		return apperrors.NewValidationError("to_stage required", nil)
	}

	updated, err := h.engine.Transition(c.UserContext(), item.ID, req.ToStage, actor, service.TransitionOptions{
		Reason:     req.Reason,
		AssigneeID: req.AssigneeID,
		DueAt:      req.DueAt,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkItemResponse(updated)})
}

// Assign POST /work-items/:id/assignment.
func (h *WorkItemsHandler) Assign(c *fiber.Ctx) error {
	item, actor, err := h.load(c, auth.OpAssign)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	updated, err := h.engine.Assign(c.UserContext(), item.ID, req.AssigneeID, actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkItemResponse(updated)})
}

// Release DELETE /work-items/:id/assignment.
func (h *WorkItemsHandler) Release(c *fiber.Ctx) error {
	item, actor, err := h.load(c, auth.OpRelease)
	if err != nil {
		return err
	}
	var req dto.ReleaseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	updated, err := h.engine.Release(c.UserContext(), item.ID, actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkItemResponse(updated)})
}

// ChangePriority PATCH /work-items/:id/priority.
func (h *WorkItemsHandler) ChangePriority(c *fiber.Ctx) error {
	item, actor, err := h.load(c, auth.OpChangePriority)
	if err != nil {
		return err
	}
	var req dto.ChangePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	updated, err := h.engine.ChangePriority(c.UserContext(), item.ID, req.Priority, actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkItemResponse(updated)})
}

// AddNote POST /work-items/:id/notes.
func (h *WorkItemsHandler) AddNote(c *fiber.Ctx) error {
	item, actor, err := h.load(c, auth.OpAddNote)
	if err != nil {
		return err
	}
	var req dto.CreateNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Internal && !h.permissions.Allowed(actor, auth.OpReadInternal, item) {
		return apperrors.NewForbidden("internal notes are restricted to staff")
	}

	note, err := h.engine.AddNote(c.UserContext(), item.ID, service.NoteInput{
		Type:              req.Type,
		Text:              req.Text,
		Internal:          req.Internal,
		ExternallyVisible: req.ExternallyVisible,
	}, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewNoteResponse(note)})
}

// Notes GET /work-items/:id/notes.
func (h *WorkItemsHandler) Notes(c *fiber.Ctx) error {
	item, actor, err := h.load(c, auth.OpRead)
	if err != nil {
		return err
	}
	includeInternal := h.permissions.Allowed(actor, auth.OpReadInternal, item)
	notes, err := h.queries.Notes(c.UserContext(), item.ID, includeInternal)
	if err != nil {
		return err
	}
	out := make([]dto.NoteResponse, 0, len(notes))
	for i := range notes {
		out = append(out, dto.NewNoteResponse(&notes[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// History GET /work-items/:id/history.
func (h *WorkItemsHandler) History(c *fiber.Ctx) error {
	item, _, err := h.load(c, auth.OpRead)
	if err != nil {
		return err
	}
	history, err := h.queries.History(c.UserContext(), item.ID)
	if err != nil {
		return err
	}
	out := make([]dto.TransitionEventResponse, 0, len(history))
	for i := range history {
		out = append(out, dto.NewTransitionEventResponse(&history[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

func (h *WorkItemsHandler) authorize(c *fiber.Ctx, op auth.Operation, item *domain.WorkItem) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	if !h.permissions.Allowed(actor, op, item) {
		return domain.Actor{}, apperrors.NewForbidden("operation not permitted")
	}
	return actor, nil
}

// load fetches the item named by the :id parameter and checks op against it.
func (h *WorkItemsHandler) load(c *fiber.Ctx, op auth.Operation) (*domain.WorkItem, domain.Actor, error) {
	if _, ok := auth.ActorFromContext(c); !ok {
		return nil, domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	item, err := h.queries.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, domain.Actor{}, err
	}
	actor, err := h.authorize(c, op, item)
	if err != nil {
		return nil, domain.Actor{}, err
	}
	return item, actor, nil
}

func workItemList(items []domain.WorkItem) []dto.WorkItemResponse {
	out := make([]dto.WorkItemResponse, 0, len(items))
	for i := range items {
		out = append(out, dto.NewWorkItemResponse(&items[i]))
	}
	return out
}

func pageMeta(page service.Page, count int) fiber.Map {
	return fiber.Map{"limit": page.Limit, "offset": page.Offset, "count": count}
}

func parseWorkItemQuery(c *fiber.Ctx) (repository.WorkItemFilter, service.Page) {
	filter := repository.WorkItemFilter{}
	if kind := c.Query("kind"); kind != "" {
		k := domain.Kind(kind)
		filter.Kind = &k
	}
	filter.LocationID = optionalQuery(c, "location_id")
	filter.QueueID = optionalQuery(c, "queue_id")
	filter.AssigneeID = optionalQuery(c, "assignee_id")
	filter.SearchTerm = optionalQuery(c, "q")
	for _, part := range splitList(c.Query("stage")) {
		filter.Stages = append(filter.Stages, domain.Stage(part))
	}
	for _, part := range splitList(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.Priority(part))
	}
	for _, part := range splitList(c.Query("aging")) {
		filter.AgingTiers = append(filter.AgingTiers, domain.AgingTier(part))
	}
	filter.OpenOnly = c.QueryBool("open", false)
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))
	if c.Query("sort") == "due" {
		filter.Order = repository.OrderDueAsc
	}
	return filter, parsePage(c)
}

func parsePage(c *fiber.Ctx) service.Page {
	page := parseInt(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := service.Page{Limit: parseInt(c.Query("page_size"), 20)}.Normalize().Limit
	return service.Page{Limit: pageSize, Offset: (page - 1) * pageSize}
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}
