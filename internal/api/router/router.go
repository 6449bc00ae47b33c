package router

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/antcore/internal/domain/runtime"
)

// Lifecycle is the set of operations the router dispatches to.
type Lifecycle interface {
	Install(ctx context.Context, code []byte) runtime.Result
	Remove(ctx context.Context) runtime.Result
	Start(ctx context.Context) runtime.Result
	Stop(ctx context.Context) runtime.Result
	Status(ctx context.Context) runtime.Result
	Command(ctx context.Context, name string) runtime.Result
	Code() runtime.Result
}

// Request is a fully buffered control request.
type Request struct {
	Method string
	Tokens []string
	Body   []byte
}

// Endpoint identifies a routing table entry.
type Endpoint int

const (
	Unmatched Endpoint = iota
	Alive
	Status
	Install
	Remove
	Command
	Code
)

// String returns the endpoint's route label
func (e Endpoint) String() string {
	switch e {
	case Alive:
		return "alive"
	case Status:
		return "status"
	case Install:
		return "install"
	case Remove:
		return "remove"
	case Command:
		return "command"
	case Code:
		return "code"
	default:
		return "unmatched"
	}
}

const (
	segRuntime    = "runtime"
	segCurrentApp = "currentApp"
	segCommand    = "command"
	segCode       = "code"
)

// Resolve matches a method and tokenized path against the routing table.
// Paths must match exactly; extra segments are unmatched.
func Resolve(method string, tokens []string) Endpoint {
	switch len(tokens) {
	case 0:
		if method == http.MethodGet {
			return Alive
		}
	case 2:
		if tokens[0] != segRuntime || tokens[1] != segCurrentApp {
			break
		}
		switch method {
		case http.MethodGet:
			return Status
		case http.MethodPost:
			return Install
		case http.MethodDelete:
			return Remove
		}
	case 3:
		if tokens[0] != segRuntime || tokens[1] != segCurrentApp {
			break
		}
		switch {
		case method == http.MethodPost && tokens[2] == segCommand:
			return Command
		case method == http.MethodGet && tokens[2] == segCode:
			return Code
		}
	}
	return Unmatched
}

// Router maps requests onto lifecycle operations.
type Router struct {
	lifecycle Lifecycle
	logger    *zap.Logger
}

// New creates a router over the given lifecycle.
func New(lifecycle Lifecycle, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// Route dispatches req and returns exactly one Result for it.
func (r *Router) Route(ctx context.Context, req Request) runtime.Result {
	result := runtime.NotFound

	switch endpoint := Resolve(req.Method, req.Tokens); endpoint {
	case Alive:
		result = runtime.Alive
	case Status:
		result = r.lifecycle.Status(ctx)
	case Install:
		result = r.lifecycle.Install(ctx, req.Body)
	case Remove:
		result = r.lifecycle.Remove(ctx)
	case Command:
		result = r.lifecycle.Command(ctx, string(req.Body))
	case Code:
		result = r.lifecycle.Code()
	default:
		r.logger.Debug("No route", zap.String("method", req.Method), zap.Strings("tokens", req.Tokens))
	}

	return result
}
