package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/antcore/internal/infrastructure/resilience"
)

// Loader compiles bundles into Programs
type Loader struct {
	config  Config
	logger  *zap.Logger
	breaker *resilience.Breaker
}

// New creates a loader
func New(config Config, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		config: config,
		logger: logger,
	}
}

// WithBreaker guards loads with a circuit breaker. Only isolation failures
// (interrupted or panicking bundles) count against it; ordinary script
// errors do not.
func (l *Loader) WithBreaker(breaker *resilience.Breaker) *Loader {
	l.breaker = breaker
	return l
}

// Load compiles and runs a bundle, then resolves its entry points.
func (l *Loader) Load(ctx context.Context, code []byte) (*Program, error) {
	if l.breaker == nil {
		return l.load(ctx, code)
	}

	var (
		program *Program
		loadErr error
	)
	err := l.breaker.Execute(func() error {
		program, loadErr = l.load(ctx, code)
		if errors.Is(loadErr, ErrInterrupted) || errors.Is(loadErr, ErrPanic) {
			return loadErr
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load app: %w", err)
	}
	return program, loadErr
}

func (l *Loader) load(ctx context.Context, code []byte) (*Program, error) {
	if !isText(code) {
		return nil, ErrNotText
	}

	compiled, err := goja.Compile(appFilename, string(code), false)
	if err != nil {
		return nil, fmt.Errorf("compile app: %w", err)
	}

	p := &Program{
		vm:           goja.New(),
		startTimeout: l.config.StartTimeout,
		infoTimeout:  l.config.InfoTimeout,
		logger:       l.logger,
	}
	if l.config.MaxCallStackSize > 0 {
		p.vm.SetMaxCallStackSize(l.config.MaxCallStackSize)
	}

	reg := &entryPoints{}
	p.setupGlobals(reg, l.config.EnableConsole)

	if _, err := p.run(ctx, l.config.Timeout, func() (goja.Value, error) {
		return p.vm.RunProgram(compiled)
	}); err != nil {
		return nil, fmt.Errorf("run app: %w", err)
	}

	if err := p.resolve(reg); err != nil {
		return nil, err
	}

	if p.entry.initialize != nil {
		if _, err := p.run(ctx, l.config.Timeout, func() (goja.Value, error) {
			return p.entry.initialize(goja.Undefined())
		}); err != nil {
			return nil, fmt.Errorf("initialize app: %w", err)
		}
	}

	l.logger.Debug("App loaded", zap.Bool("registered", reg.start != nil))
	return p, nil
}

// setupGlobals configures global objects and security
func (p *Program) setupGlobals(reg *entryPoints, console bool) {
	// Remove dangerous globals
	p.vm.Set("require", goja.Undefined())
	p.vm.Set("process", goja.Undefined())
	p.vm.Set("module", goja.Undefined())
	p.vm.Set("exports", goja.Undefined())

	if console {
		obj := p.vm.NewObject()
		_ = obj.Set("log", p.consoleFunc(zapcore.InfoLevel))
		_ = obj.Set("info", p.consoleFunc(zapcore.InfoLevel))
		_ = obj.Set("warn", p.consoleFunc(zapcore.WarnLevel))
		_ = obj.Set("error", p.consoleFunc(zapcore.ErrorLevel))
		p.vm.Set("console", obj)
	}

	// Timers are inert inside the sandbox
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	p.vm.Set("setTimeout", noop)
	p.vm.Set("setInterval", noop)
	p.vm.Set("clearTimeout", noop)
	p.vm.Set("clearInterval", noop)

	runtimeObj := p.vm.NewObject()
	_ = runtimeObj.Set("setCurrentApp", func(call goja.FunctionCall) goja.Value {
		reg.initialize = optionalFunc(call.Argument(0))
		reg.start = optionalFunc(call.Argument(1))
		// onStop (argument 2) is accepted; the host defines no stop transition.
		reg.getInfo = optionalFunc(call.Argument(3))
		if reg.start == nil {
			panic(p.vm.NewTypeError("setCurrentApp requires an onStart function"))
		}
		return goja.Undefined()
	})
	ant := p.vm.NewObject()
	_ = ant.Set("runtime", runtimeObj)
	p.vm.Set("ant", ant)
}

// resolve picks registered entry points, falling back to global functions.
func (p *Program) resolve(reg *entryPoints) error {
	if reg.start != nil {
		p.entry = *reg
		return nil
	}

	start := optionalFunc(p.vm.Get("start"))
	if start == nil {
		return ErrNoEntryPoint
	}
	p.entry = entryPoints{
		start:   start,
		getInfo: optionalFunc(p.vm.Get("getInfo")),
	}
	return nil
}

func (p *Program) consoleFunc(level zapcore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		if ce := p.logger.Named("app").Check(level, strings.Join(parts, " ")); ce != nil {
			ce.Write()
		}
		return goja.Undefined()
	}
}

func optionalFunc(v goja.Value) goja.Callable {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil
	}
	return fn
}

// isText rejects binary uploads before they reach the compiler.
func isText(code []byte) bool {
	if len(code) == 0 {
		return true
	}
	for m := mimetype.Detect(code); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
