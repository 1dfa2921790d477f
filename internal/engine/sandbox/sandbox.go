// Package sandbox provides the isolated JS runtime backing the function
// block handler. Enrichment: the teacher has no function-sandbox code of
// its own to imitate, so this is grounded on the broader retrieval pack's
// stherrien-gorax parallel/function-executor reference material, which
// uses github.com/dop251/goja for the same purpose.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Sandbox runs untrusted JS in a fresh goja.Runtime per call, bounded by a
// wall-clock timeout enforced via goja's interrupt mechanism. Memory use is
// not capped.
type Sandbox struct {
	Timeout time.Duration
}

func New(timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sandbox{Timeout: timeout}
}

// Run evaluates code as the body of a function receiving `input`, e.g.
// `return input.value * 2;`. The single returned value is converted to a
// plain Go value.
func (s *Sandbox) Run(ctx context.Context, code string, input any) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if err := vm.Set("input", input); err != nil {
		return nil, fmt.Errorf("sandbox: bind input: %w", err)
	}

	wrapped := "(function(input) {\n" + code + "\n})(input)"

	timeout := s.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("sandbox: execution timed out")
	})
	defer timer.Stop()

	var (
		value goja.Value
		err   error
	)
	go func() {
		value, err = vm.RunString(wrapped)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		vm.Interrupt("sandbox: execution cancelled")
		<-done
		if err == nil {
			err = ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}
