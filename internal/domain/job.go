package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"time"
)

const (
	DefaultConcurrency = 5
	DefaultRetryDelay  = 5 * time.Second
)

// Meta accompanies every Execute and Poll call. Queue is set for named tasks.
type Meta struct {
	ID    string
	Queue string
}

// Task is one unit of work produced by Run. A non-empty Queue makes it a
// named task, drained in order with every other task of the same Queue.
type Task struct {
	Data  any
	Queue string
}

// Zero reports whether the task carries nothing and should be dropped: nil,
// false, zero numbers, empty strings and nil references, in Go or JSON form.
func (t Task) Zero() bool {
	if raw, ok := t.Data.(json.RawMessage); ok {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			return true
		}
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return false
		}
		return falsy(reflect.ValueOf(v))
	}
	return falsy(reflect.ValueOf(t.Data))
}

func falsy(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return v.IsZero()
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// TaskCollector accumulates tasks pushed during Run. Whatever Run returns is
// appended after the collected ones.
type TaskCollector struct {
	tasks []Task
}

func (c *TaskCollector) Add(tasks ...Task) {
	c.tasks = append(c.tasks, tasks...)
}

// Merge returns the collected tasks followed by returned, without zero tasks.
func (c *TaskCollector) Merge(returned []Task) []Task {
	all := make([]Task, 0, len(c.tasks)+len(returned))
	for _, list := range [][]Task{c.tasks, returned} {
		for _, t := range list {
			if !t.Zero() {
				all = append(all, t)
			}
		}
	}
	return all
}

type Runner interface {
	Run(ctx context.Context, payload json.RawMessage, tasks *TaskCollector) ([]Task, error)
}

type Executor interface {
	Execute(ctx context.Context, payload json.RawMessage, meta Meta) error
}

type Poller interface {
	Poll(ctx context.Context, event json.RawMessage, meta Meta) error
}

// Event is the envelope other processes push onto external mailboxes.
type Event struct {
	Data json.RawMessage `json:"data"`
}

// Definition describes one job. Job must implement at least one of Runner,
// Executor or Poller; Schedule is an optional cron expression that starts the job.
type Definition struct {
	Name        string
	Concurrency int
	RetryDelay  time.Duration
	Schedule    string
	Job         any
}

func (d Definition) Runner() (Runner, bool) {
	r, ok := d.Job.(Runner)
	return r, ok
}

func (d Definition) Executor() (Executor, bool) {
	e, ok := d.Job.(Executor)
	return e, ok
}

func (d Definition) Poller() (Poller, bool) {
	p, ok := d.Job.(Poller)
	return p, ok
}

// Threshold is the pending task count at which Run is deferred.
func (d Definition) Threshold() int64 {
	return int64(d.Concurrency) * 2
}

func (d Definition) withDefaults() Definition {
	if d.Concurrency <= 0 {
		d.Concurrency = DefaultConcurrency
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = DefaultRetryDelay
	}
	return d
}
