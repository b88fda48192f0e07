package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workflow-station/task-engine/internal/application/service"
	"github.com/workflow-station/task-engine/internal/domain/entity"
)

// userHeader carries the acting user's id. Authentication happens upstream
// at the gateway; this service only needs the identity.
const userHeader = "X-User-Id"

// Handlers contains all HTTP request handlers
type Handlers struct {
	queryService      service.TaskQueryService
	processService    service.TaskProcessService
	delegationService service.DelegationService
	exportService     service.TaskExportService
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	queryService service.TaskQueryService,
	processService service.TaskProcessService,
	delegationService service.DelegationService,
	exportService service.TaskExportService,
	logger Logger,
) *Handlers {
	return &Handlers{
		queryService:      queryService,
		processService:    processService,
		delegationService: delegationService,
		exportService:     exportService,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// TaskQueryParams represents query parameters for listing tasks
type TaskQueryParams struct {
	AssignmentTypes []string `form:"assignment_type"`
	Priorities      []string `form:"priority"`
	Keyword         string   `form:"keyword"`
	Page            int      `form:"page"`
	Size            int      `form:"size"`
	SortBy          string   `form:"sort_by"`
	SortDirection   string   `form:"sort_direction"`
}

// UnclaimRequest carries the pool a task returns to
type UnclaimRequest struct {
	PoolType string `json:"pool_type"`
	PoolKey  string `json:"pool_key"`
}

// CompleteRequest carries a completion action
type CompleteRequest struct {
	Action       string `json:"action"`
	Comment      string `json:"comment"`
	TargetUserID string `json:"target_user_id"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// QueryTasks handles GET /api/tasks
func (h *Handlers) QueryTasks(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	var params TaskQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return
	}

	page, err := h.queryService.QueryTasks(c.Request.Context(), service.TaskQueryRequest{
		UserID:          userID,
		AssignmentTypes: params.AssignmentTypes,
		Priorities:      params.Priorities,
		Keyword:         params.Keyword,
		Page:            params.Page,
		Size:            params.Size,
		SortBy:          params.SortBy,
		SortDirection:   params.SortDirection,
	})
	if err != nil {
		h.respondError(c, err, "failed to query tasks")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    page,
	})
}

// GetTask handles GET /api/tasks/:id
func (h *Handlers) GetTask(c *gin.Context) {
	task, err := h.queryService.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to get task")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    task,
	})
}

// GetTaskStatistics handles GET /api/tasks/statistics
func (h *Handlers) GetTaskStatistics(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	stats, err := h.queryService.GetTaskStatistics(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "failed to get task statistics")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    stats,
	})
}

// ExportTasks handles GET /api/tasks/export
func (h *Handlers) ExportTasks(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	var params TaskQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return
	}

	data, err := h.exportService.ExportTasks(c.Request.Context(), service.TaskQueryRequest{
		UserID:          userID,
		AssignmentTypes: params.AssignmentTypes,
		Priorities:      params.Priorities,
		Keyword:         params.Keyword,
		SortBy:          params.SortBy,
		SortDirection:   params.SortDirection,
	})
	if err != nil {
		h.respondError(c, err, "failed to export tasks")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="tasks.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ClaimTask handles POST /api/tasks/:id/claim
func (h *Handlers) ClaimTask(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	task, err := h.processService.Claim(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.respondError(c, err, "failed to claim task")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    task,
	})
}

// UnclaimTask handles POST /api/tasks/:id/unclaim
func (h *Handlers) UnclaimTask(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	var req UnclaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	task, err := h.processService.Unclaim(c.Request.Context(), c.Param("id"), userID, req.PoolType, req.PoolKey)
	if err != nil {
		h.respondError(c, err, "failed to unclaim task")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    task,
	})
}

// CompleteTask handles POST /api/tasks/:id/complete
func (h *Handlers) CompleteTask(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	err := h.processService.CompleteTask(c.Request.Context(), service.TaskCompleteRequest{
		TaskID:       c.Param("id"),
		Action:       req.Action,
		Comment:      req.Comment,
		TargetUserID: req.TargetUserID,
	}, userID)
	if err != nil {
		h.respondError(c, err, "failed to complete task")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListDelegations handles GET /api/delegations
func (h *Handlers) ListDelegations(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	rules, err := h.delegationService.RulesByDelegator(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "failed to list delegation rules")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    rules,
	})
}

// ListReceivedDelegations handles GET /api/delegations/received
func (h *Handlers) ListReceivedDelegations(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	rules, err := h.delegationService.RulesForDelegate(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "failed to list received delegations")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    rules,
	})
}

// CreateDelegation handles POST /api/delegations
func (h *Handlers) CreateDelegation(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}

	var req service.DelegationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	rule, err := h.delegationService.CreateRule(c.Request.Context(), userID, req)
	if err != nil {
		h.respondError(c, err, "failed to create delegation rule")
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    rule,
	})
}

// UpdateDelegation handles PUT /api/delegations/:id
func (h *Handlers) UpdateDelegation(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}
	ruleID, ok := h.ruleID(c)
	if !ok {
		return
	}

	var req service.DelegationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	rule, err := h.delegationService.UpdateRule(c.Request.Context(), ruleID, userID, req)
	if err != nil {
		h.respondError(c, err, "failed to update delegation rule")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    rule,
	})
}

// DeleteDelegation handles DELETE /api/delegations/:id
func (h *Handlers) DeleteDelegation(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}
	ruleID, ok := h.ruleID(c)
	if !ok {
		return
	}

	if err := h.delegationService.DeleteRule(c.Request.Context(), ruleID, userID); err != nil {
		h.respondError(c, err, "failed to delete delegation rule")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// SuspendDelegation handles POST /api/delegations/:id/suspend
func (h *Handlers) SuspendDelegation(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}
	ruleID, ok := h.ruleID(c)
	if !ok {
		return
	}

	rule, err := h.delegationService.SuspendRule(c.Request.Context(), ruleID, userID)
	if err != nil {
		h.respondError(c, err, "failed to suspend delegation rule")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    rule,
	})
}

// ResumeDelegation handles POST /api/delegations/:id/resume
func (h *Handlers) ResumeDelegation(c *gin.Context) {
	userID, ok := h.actingUser(c)
	if !ok {
		return
	}
	ruleID, ok := h.ruleID(c)
	if !ok {
		return
	}

	rule, err := h.delegationService.ResumeRule(c.Request.Context(), ruleID, userID)
	if err != nil {
		h.respondError(c, err, "failed to resume delegation rule")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    rule,
	})
}

// actingUser extracts the acting user id from the request header
func (h *Handlers) actingUser(c *gin.Context) (string, bool) {
	userID := c.GetHeader(userHeader)
	if userID == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing " + userHeader + " header",
		})
		return "", false
	}
	return userID, true
}

// ruleID parses the rule id path parameter
func (h *Handlers) ruleID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.logger.Error("Invalid rule ID", "id", idStr, "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid rule ID",
		})
		return 0, false
	}
	return id, true
}

// respondError maps service errors onto HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, entity.ErrValidation):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	case errors.Is(err, entity.ErrUnauthorized):
		c.JSON(http.StatusForbidden, Response{Success: false, Error: err.Error()})
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, entity.ErrConflict):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: fallback})
	}
}
