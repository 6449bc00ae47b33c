package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// entryPoints are the bundle functions the host calls into.
type entryPoints struct {
	initialize goja.Callable
	start      goja.Callable
	getInfo    goja.Callable
}

// Program is a loaded bundle. Its VM is not safe for concurrent use, so
// every call takes mu.
type Program struct {
	mu           sync.Mutex
	vm           *goja.Runtime // nil once closed
	entry        entryPoints
	startTimeout time.Duration
	infoTimeout  time.Duration
	logger       *zap.Logger
}

// Start calls the start entry point and returns the message it reports.
func (p *Program) Start(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.vm == nil {
		return "", ErrClosed
	}

	val, err := p.run(ctx, p.startTimeout, func() (goja.Value, error) {
		return p.entry.start(goja.Undefined())
	})
	if err != nil {
		return "", err
	}
	if isEmpty(val) {
		return startedMessage, nil
	}
	return val.String(), nil
}

// Info calls getInfo, if the bundle has one, and returns its result as
// plain JSON-compatible data. Non-object results are wrapped under "info".
func (p *Program) Info(ctx context.Context) (map[string]interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.vm == nil {
		return nil, ErrClosed
	}
	if p.entry.getInfo == nil {
		return nil, nil
	}

	var encoded string
	_, err := p.run(ctx, p.infoTimeout, func() (goja.Value, error) {
		val, err := p.entry.getInfo(goja.Undefined())
		if err != nil || isEmpty(val) {
			return val, err
		}
		// Round-trip through JSON.stringify so functions and cycles never
		// reach the host encoder.
		out, err := p.vm.RunString("JSON.stringify")
		if err != nil {
			return nil, err
		}
		stringify, _ := goja.AssertFunction(out)
		s, err := stringify(goja.Undefined(), val)
		if err != nil {
			return nil, err
		}
		if !isEmpty(s) {
			encoded = s.String()
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	if encoded == "" {
		return nil, nil
	}

	var decoded interface{}
	if err := sonic.UnmarshalString(encoded, &decoded); err != nil {
		return nil, fmt.Errorf("decode app info: %w", err)
	}
	if m, ok := decoded.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{"info": decoded}, nil
}

// Close releases the VM. Later calls fail with ErrClosed.
func (p *Program) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.vm = nil
	p.entry = entryPoints{}
	return nil
}

// run executes fn bounded by timeout and ctx, interrupting the VM when
// either expires. A non-positive timeout leaves only ctx. Panics escaping
// goja are converted to ErrPanic.
func (p *Program) run(ctx context.Context, timeout time.Duration, fn func() (goja.Value, error)) (val goja.Value, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			p.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	defer func() {
		close(stop)
		wg.Wait()
		p.vm.ClearInterrupt()

		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	val, err = fn()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		err = fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
	}
	return val, err
}

func isEmpty(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
