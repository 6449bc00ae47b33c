package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/GriffinCanCode/antcore/internal/domain/runtime"
)

const (
	// DefaultBaseURL is the control server address used when none is given.
	DefaultBaseURL = "http://localhost:8001"

	currentAppPath = "/runtime/currentApp"
	commandPath    = currentAppPath + "/command"
	codePath       = currentAppPath + "/code"
)

// ErrNoStatus is returned by DecodeStatus for any non-2xx reply, such as
// "No App Found" or "Failed".
var ErrNoStatus = errors.New("no app status available")

// Config defines client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Gzip compresses install uploads.
	Gzip bool
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// Reply is the raw status and body of a control response.
type Reply struct {
	Status  int
	Message string
}

// OK reports whether the server answered with a 2xx status.
func (r Reply) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client talks to a control server. Requests are never retried: every
// operation either succeeds once or reports failure.
type Client struct {
	resty *resty.Client
	gzip  bool
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	r := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "antcore-client/1.0")

	return &Client{resty: r, gzip: cfg.Gzip}
}

// Ping checks liveness.
func (c *Client) Ping(ctx context.Context) (Reply, error) {
	return c.do(ctx, http.MethodGet, "/", nil, "")
}

// Install uploads code as the current application.
func (c *Client) Install(ctx context.Context, code []byte) (Reply, error) {
	if !c.gzip {
		return c.do(ctx, http.MethodPost, currentAppPath, code, "")
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(code); err != nil {
		return Reply{}, fmt.Errorf("compress app: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Reply{}, fmt.Errorf("compress app: %w", err)
	}
	return c.do(ctx, http.MethodPost, currentAppPath, buf.Bytes(), "gzip")
}

// Remove asks the server to remove the current application.
func (c *Client) Remove(ctx context.Context) (Reply, error) {
	return c.do(ctx, http.MethodDelete, currentAppPath, nil, "")
}

// Status fetches the current application's status document.
func (c *Client) Status(ctx context.Context) (Reply, error) {
	return c.do(ctx, http.MethodGet, currentAppPath, nil, "")
}

// Command sends a named command.
func (c *Client) Command(ctx context.Context, name string) (Reply, error) {
	return c.do(ctx, http.MethodPost, commandPath, []byte(name), "")
}

// Start sends the start command.
func (c *Client) Start(ctx context.Context) (Reply, error) {
	return c.Command(ctx, "start")
}

// Stop sends the stop command.
func (c *Client) Stop(ctx context.Context) (Reply, error) {
	return c.Command(ctx, "stop")
}

// Code fetches the installed code.
func (c *Client) Code(ctx context.Context) (Reply, error) {
	return c.do(ctx, http.MethodGet, codePath, nil, "")
}

// DecodeStatus parses a successful Status reply.
func DecodeStatus(reply Reply) (runtime.Status, error) {
	var status runtime.Status
	if !reply.OK() {
		return status, fmt.Errorf("%w: %d %s", ErrNoStatus, reply.Status, reply.Message)
	}
	if err := sonic.UnmarshalString(reply.Message, &status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, encoding string) (Reply, error) {
	req := c.resty.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if encoding != "" {
		req.SetHeader("Content-Encoding", encoding)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return Reply{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return Reply{Status: resp.StatusCode(), Message: string(resp.Body())}, nil
}
