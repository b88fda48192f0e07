package workflowengine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/workflow-station/task-engine/internal/application/port"
)

// Client implements port.ProcessEngineNotifier against the workflow engine's
// HTTP API. The engine owns process sequencing; this client only reports
// terminal task outcomes back to it.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// Config holds workflow engine connection settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type completionRequest struct {
	TaskID  string `json:"task_id"`
	Action  string `json:"action"`
	Comment string `json:"comment,omitempty"`
}

type completionResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewClient creates a new workflow engine client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// OnTaskCompleted reports a terminal completion to the engine
func (c *Client) OnTaskCompleted(ctx context.Context, taskID, action, comment string) error {
	var result completionResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(completionRequest{TaskID: taskID, Action: action, Comment: comment}).
		SetResult(&result).
		Post("/api/tasks/completions")
	if err != nil {
		c.logger.Error("Workflow engine notification failed",
			zap.String("task_id", taskID),
			zap.String("action", action),
			zap.Error(err))
		return fmt.Errorf("failed to notify workflow engine: %w", err)
	}
	if resp.IsError() || result.Code != 0 {
		c.logger.Error("Workflow engine rejected completion",
			zap.String("task_id", taskID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", result.Message))
		return fmt.Errorf("workflow engine error: %s (status: %d)", result.Message, resp.StatusCode())
	}

	c.logger.Info("Task completion reported to workflow engine",
		zap.String("task_id", taskID),
		zap.String("action", action))
	return nil
}

// Verify interface compliance
var _ port.ProcessEngineNotifier = (*Client)(nil)
