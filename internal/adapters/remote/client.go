package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/ports"
)

const (
	DefaultTimeout = 30 * time.Second
	maxReplyBytes  = 4 << 20
)

type Config struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client posts {action, ...data} to a single endpoint. One attempt per call.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.Backend = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: backend endpoint is required", domain.ErrConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{endpoint: endpoint, timeout: timeout, httpClient: httpClient, logger: logger}, nil
}

// Call sends one action. The reply comes back verbatim whatever its ok
// flag or HTTP status; only transport, timeout and decode failures are errors.
// The timeout is a deadline on the request context: the request is cancelled
// on the wire rather than left running, and a late response is never read.
func (c *Client) Call(ctx context.Context, action string, data map[string]any) (ports.Reply, error) {
	start := time.Now()
	reply, err := c.call(ctx, action, data)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	} else if !reply.OK() {
		outcome = "rejected"
	}
	attrs := []any{
		"module", "remote",
		"layer", "adapter",
		"operation", "call",
		"outcome", outcome,
		"action", action,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		c.logger.WarnContext(ctx, "backend call failed", append(attrs, "error", err.Error())...)
	} else {
		c.logger.InfoContext(ctx, "backend call", attrs...)
	}
	return reply, err
}

func (c *Client) call(ctx context.Context, action string, data map[string]any) (ports.Reply, error) {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["action"] = action
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &domain.CallError{Action: action, Kind: domain.ErrInvalidInput, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, &domain.CallError{Action: action, Kind: domain.ErrConfig, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(action, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, c.transportError(action, err)
	}
	var reply ports.Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, &domain.CallError{Action: action, Kind: domain.ErrDecode, Err: fmt.Errorf("status=%d: %w", resp.StatusCode, err)}
	}
	if reply == nil {
		return nil, &domain.CallError{Action: action, Kind: domain.ErrDecode, Err: fmt.Errorf("status=%d: reply is not an object", resp.StatusCode)}
	}
	return reply, nil
}

func (c *Client) transportError(action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.CallError{Action: action, Kind: domain.ErrTimeout, Err: err}
	}
	return &domain.CallError{Action: action, Kind: domain.ErrNetwork, Err: err}
}
