// Package tools maps agent tool names to the functions that carry them out.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const (
	SendEmail = "send_email"
	EndCall   = "end_call"
)

var ErrUnknownTool = errors.New("unknown tool")

// Output is the outcome of one tool invocation, shaped for the agent.
type Output struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Func runs a tool with its raw JSON parameters.
type Func func(ctx context.Context, params json.RawMessage) (Output, error)

type Dispatcher struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{funcs: make(map[string]Func)}
}

func (d *Dispatcher) Register(name string, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[name] = fn
}

func (d *Dispatcher) Known(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.funcs[name]
	return ok
}

func (d *Dispatcher) Dispatch(ctx context.Context, name string, params json.RawMessage) (Output, error) {
	d.mu.RLock()
	fn, ok := d.funcs[name]
	d.mu.RUnlock()
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return fn(ctx, params)
}
