// Package script loads content-enhancement plugins written in JavaScript
// from the configured plugin directory. Scripts declare an identifier,
// application patterns, and enhance/extractStructured functions; they run
// in an interruptible goja VM so the registry's time and memory budgets
// are enforced even against runaway scripts.
package script

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/dop251/goja"
)

// ErrMemoryBudget marks an interrupt caused by the memory watchdog.
var ErrMemoryBudget = errors.New("memory budget exceeded")

// heapInUse samples the process heap. Swapped in tests.
var heapInUse = func() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

const memCheckInterval = 10 * time.Millisecond

// watchVM interrupts the VM when ctx is cancelled or, for a positive
// memLimit, when the process heap grows past the budget while the script
// runs. goja exposes no per-VM allocation accounting, so the check is an
// approximation over whole-process heap growth since the call started; it
// catches the runaway allocator it is aimed at, not precise attribution
// between concurrent plugins.
func watchVM(ctx context.Context, vm *goja.Runtime, memLimit int64, done <-chan struct{}) {
	var tick <-chan time.Time
	var baseline uint64
	if memLimit > 0 {
		baseline = heapInUse()
		ticker := time.NewTicker(memCheckInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
			return
		case <-done:
			return
		case <-tick:
			now := heapInUse()
			if now > baseline && int64(now-baseline) > memLimit {
				vm.Interrupt(fmt.Errorf("%w: heap grew %d bytes over budget %d",
					ErrMemoryBudget, now-baseline, memLimit))
				return
			}
		}
	}
}

// runProgram executes a compiled program on a fresh VM under the watchdog.
func runProgram(ctx context.Context, program *goja.Program, memLimit int64) (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	done := make(chan struct{})
	defer close(done)
	defer vm.ClearInterrupt()
	go watchVM(ctx, vm, memLimit, done)

	if _, err := vm.RunProgram(program); err != nil {
		return nil, unwrapInterrupt(err)
	}
	return vm, nil
}

// callFunction invokes a named function on the plugin object and returns
// the exported result.
func callFunction(ctx context.Context, vm *goja.Runtime, memLimit int64, fn goja.Callable, args ...goja.Value) (interface{}, error) {
	done := make(chan struct{})
	defer close(done)
	defer vm.ClearInterrupt()
	go watchVM(ctx, vm, memLimit, done)

	val, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, unwrapInterrupt(err)
	}
	return val.Export(), nil
}

func unwrapInterrupt(err error) error {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return context.Canceled
	}
	return err
}

// pluginObject extracts the global `plugin` declaration from an executed
// script.
func pluginObject(vm *goja.Runtime) (*goja.Object, error) {
	raw := vm.Get("plugin")
	if raw == nil || goja.IsUndefined(raw) || goja.IsNull(raw) {
		return nil, fmt.Errorf("script does not declare a global 'plugin' object")
	}
	obj := raw.ToObject(vm)
	if obj == nil {
		return nil, fmt.Errorf("'plugin' is not an object")
	}
	return obj, nil
}
