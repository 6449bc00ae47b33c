package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/antcore/internal/api/buffer"
	"github.com/GriffinCanCode/antcore/internal/api/middleware"
	"github.com/GriffinCanCode/antcore/internal/api/router"
	"github.com/GriffinCanCode/antcore/internal/domain/runtime"
	"github.com/GriffinCanCode/antcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/antcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/antcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/antcore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/antcore/internal/providers/loader"
	"github.com/GriffinCanCode/antcore/internal/storage/codestore"
)

// bodyPreviewBytes caps how much of a request body is logged.
const bodyPreviewBytes = 256

// Server wraps the control HTTP server and its dependencies
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	store   *codestore.Store
	manager *runtime.Manager
	router  *router.Router
	engine  *gin.Engine

	http        *http.Server
	metricsHTTP *http.Server
}

// New creates a server from configuration. A nil logger discards output.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := codestore.New(cfg.Runtime.AppDir)
	if err != nil {
		return nil, fmt.Errorf("open app store: %w", err)
	}

	logPersisted(store, logger)

	metrics := monitoring.NewMetrics()

	ldr := loader.New(loader.Config{
		Timeout:          cfg.Runtime.LoadTimeout,
		StartTimeout:     cfg.Runtime.StartTimeout,
		InfoTimeout:      cfg.Runtime.InfoTimeout,
		MaxCallStackSize: cfg.Runtime.MaxCallStack,
		EnableConsole:    true,
	}, logger.Logger)
	if cfg.Runtime.BreakerEnabled {
		ldr.WithBreaker(resilience.New("loader", resilience.Settings{
			Failures: cfg.Runtime.BreakerFailures,
			Cooldown: cfg.Runtime.BreakerCooldown,
			OnStateChange: func(name string, from, to resilience.State) {
				metrics.SetLoaderBreaker(int(to))
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}))
	}

	manager := runtime.NewManager(runtime.NewSlot(), loaderAdapter(ldr), store, logger.Named("runtime")).
		WithMetrics(metrics).
		WithTimeouts(runtime.Timeouts{
			Load:  cfg.Runtime.LoadTimeout,
			Start: cfg.Runtime.StartTimeout,
			Info:  cfg.Runtime.InfoTimeout,
		})

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		store:   store,
		manager: manager,
		router:  router.New(manager, logger.Named("router")),
	}
	s.engine = s.setupEngine()
	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Metrics.Enabled {
		s.metricsHTTP = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           s.metricsEngine(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// logPersisted reports a bundle left on disk by an earlier run. It is not
// reloaded: the slot always starts empty.
func logPersisted(store *codestore.Store, logger *logging.Logger) {
	manifest, err := store.Manifest()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return
	case err != nil:
		logger.Warn("Unreadable app manifest", zap.String("app_dir", store.Dir()), zap.Error(err))
		return
	}
	logger.Info("Found app from a previous run, not reloading",
		zap.String("file", manifest.File),
		zap.String("digest", manifest.Digest),
		zap.Int("size", manifest.Size),
		zap.Time("installed_at", manifest.InstalledAt),
	)
}

// loaderAdapter exposes the JavaScript loader as a runtime.Loader. A failed
// load returns an untyped nil so the manager never sees a nil *Program
// wrapped in a non-nil interface.
func loaderAdapter(ldr *loader.Loader) runtime.Loader {
	return runtime.LoaderFunc(func(ctx context.Context, code []byte) (runtime.Handle, error) {
		program, err := ldr.Load(ctx, code)
		if err != nil {
			return nil, err
		}
		return program, nil
	})
}

func (s *Server) setupEngine() *gin.Engine {
	if !s.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("Panic while handling request",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)
		middleware.Abort(c, runtime.OperationFailed)
	}))
	engine.Use(middleware.RequestID())
	engine.Use(monitoring.Middleware(s.metrics))

	if s.cfg.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = s.cfg.RateLimit.RequestsPerSecond
		rl.Burst = s.cfg.RateLimit.Burst
		if s.cfg.RateLimit.Global {
			engine.Use(middleware.GlobalRateLimit(rl))
		} else {
			engine.Use(middleware.RateLimit(rl))
		}
	}
	if s.cfg.CORS.Enabled {
		cors := middleware.DefaultCORSConfig()
		cors.AllowOrigins = s.cfg.CORS.Origins
		engine.Use(middleware.CORS(cors))
	}

	// Every control request goes through the router, which owns the
	// whole path space including its 404 answer.
	engine.NoRoute(s.dispatch)

	return engine
}

func (s *Server) metricsEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return engine
}

// dispatch buffers the request body to completion, routes the request and
// writes its Result.
func (s *Server) dispatch(c *gin.Context) {
	req := c.Request
	// Route on the path as sent; an escaped slash stays inside its segment.
	tokens := router.Tokenize(req.URL.EscapedPath())
	c.Set(monitoring.RouteKey, router.Resolve(req.Method, tokens).String())

	// Operations run to completion once the body is in, even if the
	// client hangs up while waiting for the answer.
	opCtx := context.WithoutCancel(req.Context())

	result, err := buffer.Collect(req.Context(), req.Body, req.Header.Get("Content-Encoding"), s.cfg.Server.MaxBodyBytes,
		func(body []byte) runtime.Result {
			c.Set(monitoring.BodySizeKey, int64(len(body)))
			s.logRequest(c, body)
			return s.router.Route(opCtx, router.Request{
				Method: req.Method,
				Tokens: tokens,
				Body:   body,
			})
		})
	if err != nil {
		result = s.bodyError(c, err)
	}

	middleware.Respond(c, result)
}

func (s *Server) bodyError(c *gin.Context, err error) runtime.Result {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, buffer.ErrTooLarge):
		s.logger.Warn("Request body too large", append(fields, zap.Int64("limit", s.cfg.Server.MaxBodyBytes))...)
		return runtime.PayloadTooLarge
	default:
		s.logger.Debug("Request aborted before end of body", fields...)
		return runtime.BadRequest
	}
}

func (s *Server) logRequest(c *gin.Context, body []byte) {
	preview := body
	if len(preview) > bodyPreviewBytes {
		preview = preview[:bodyPreviewBytes]
	}
	s.logger.Info("Request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Int("body_size", len(body)),
		zap.ByteString("body", preview),
	)
}

// Handler returns the control HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Manager returns the lifecycle manager
func (s *Server) Manager() *runtime.Manager {
	return s.manager
}

// Metrics returns the metrics collector
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves control requests on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 2)

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("control server: %w", err)
		}
	}()
	if s.metricsHTTP != nil {
		go func() {
			if err := s.metricsHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		s.logger.Info("Metrics listening", zap.String("addr", s.metricsHTTP.Addr))
	}

	s.logger.Info("Control server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("app_dir", s.store.Dir()),
	)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	return errors.Join(serveErr, s.Shutdown())
}

// Shutdown stops accepting requests, waits for in-flight ones up to the
// configured timeout and releases the installed application.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("control server shutdown: %w", err))
	}
	if s.metricsHTTP != nil {
		if err := s.metricsHTTP.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if err := s.manager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release app: %w", err))
	}

	s.logger.Sync()
	return errors.Join(errs...)
}
