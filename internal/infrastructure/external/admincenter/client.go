package admincenter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/workflow-station/task-engine/internal/application/port"
)

// Client implements port.Directory against the admin-center HTTP API. All
// organizational data (users, departments, virtual groups, dept roles) lives
// there; this client never caches.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// Config holds admin-center connection settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// envelope is admin-center's standard response wrapper
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewClient creates a new admin-center client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// UserInfo retrieves the organizational record for a user, nil when unknown
func (c *Client) UserInfo(ctx context.Context, userID string) (*port.UserInfo, error) {
	var info port.UserInfo
	found, err := c.get(ctx, "/api/users/{id}", userID, &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

// DepartmentInfo retrieves a department record, nil when unknown
func (c *Client) DepartmentInfo(ctx context.Context, departmentID string) (*port.DepartmentInfo, error) {
	var info port.DepartmentInfo
	found, err := c.get(ctx, "/api/departments/{id}", departmentID, &info)
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

// DepartmentMembers lists the user ids of a department's members
func (c *Client) DepartmentMembers(ctx context.Context, departmentID string) ([]string, error) {
	return c.getIDs(ctx, "/api/departments/{id}/members", departmentID)
}

// VirtualGroupMembers lists the user ids of a virtual group's members
func (c *Client) VirtualGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return c.getIDs(ctx, "/api/virtual-groups/{id}/members", groupID)
}

// DeptRoleMembers lists the user ids holding a dept-role key
func (c *Client) DeptRoleMembers(ctx context.Context, roleKey string) ([]string, error) {
	return c.getIDs(ctx, "/api/dept-roles/{id}/members", roleKey)
}

// VirtualGroupsOf lists the virtual group ids a user belongs to
func (c *Client) VirtualGroupsOf(ctx context.Context, userID string) ([]string, error) {
	return c.getIDs(ctx, "/api/users/{id}/virtual-groups", userID)
}

// DeptRolesOf lists the dept-role keys a user holds
func (c *Client) DeptRolesOf(ctx context.Context, userID string) ([]string, error) {
	return c.getIDs(ctx, "/api/users/{id}/dept-roles", userID)
}

// get fetches a single record; a 404 reports found=false rather than an error
func (c *Client) get(ctx context.Context, path, id string, out interface{}) (bool, error) {
	var env envelope
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&env).
		Get(path)
	if err != nil {
		c.logger.Error("Admin-center request failed",
			zap.String("path", path),
			zap.String("id", id),
			zap.Error(err))
		return false, fmt.Errorf("failed to call admin-center: %w", err)
	}
	if resp.StatusCode() == 404 {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("admin-center error: %s (status: %d)", env.Message, resp.StatusCode())
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, fmt.Errorf("failed to decode admin-center response: %w", err)
	}
	return true, nil
}

// getIDs fetches a list of ids; a 404 is an empty list
func (c *Client) getIDs(ctx context.Context, path, id string) ([]string, error) {
	var env envelope
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&env).
		Get(path)
	if err != nil {
		c.logger.Error("Admin-center request failed",
			zap.String("path", path),
			zap.String("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to call admin-center: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("admin-center error: %s (status: %d)", env.Message, resp.StatusCode())
	}

	var ids []string
	if err := json.Unmarshal(env.Data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode admin-center response: %w", err)
	}
	return ids, nil
}

// Verify interface compliance
var _ port.Directory = (*Client)(nil)
