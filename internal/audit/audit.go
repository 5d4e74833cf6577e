// Package audit reports user actions to the remote audit sink without ever blocking the caller.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Level of an audit event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warning"
	LevelError Level = "error"
)

// Event is one reported user action.
type Event struct {
	Action    string         `json:"action"`
	Component string         `json:"component"`
	Level     Level          `json:"level"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Logger accepts audit events. Implementations must not block or fail the caller.
type Logger interface {
	Log(ctx context.Context, e Event)
}

// Action formats a tag such as "[AUTH ACTION] [SIGNUP FAILURE]".
func Action(category, step string) string {
	return "[" + strings.ToUpper(category) + "] [" + strings.ToUpper(step) + "]"
}

// redact drops any detail whose key mentions a password.
func redact(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if strings.Contains(strings.ToLower(k), "password") {
			continue
		}
		out[k] = v
	}
	return out
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(context.Context, Event) {}

// SlogLogger writes events to the structured log only.
type SlogLogger struct {
	Logger *slog.Logger
}

func (l SlogLogger) Log(ctx context.Context, e Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch e.Level {
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, "audit_event",
		"action", e.Action,
		"audit_component", e.Component,
		"details", redact(e.Details),
	)
}

// HTTPSink posts events to the audit endpoint from a bounded background queue.
type HTTPSink struct {
	url    string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	queue chan Event
	wg    sync.WaitGroup
	once  sync.Once
	done  chan struct{}
}

// SinkOptions configures an HTTPSink.
type SinkOptions struct {
	QueueSize int
	Timeout   time.Duration
	Client    *http.Client
	Logger    *slog.Logger
}

// NewHTTPSink starts the delivery goroutine. baseURL is the analysis service origin.
func NewHTTPSink(baseURL string, opts SinkOptions) *HTTPSink {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &HTTPSink{
		url:    strings.TrimRight(baseURL, "/") + "/api/log_user_action",
		client: opts.Client,
		logger: opts.Logger.With("component", "audit"),
		now:    time.Now,
		queue:  make(chan Event, opts.QueueSize),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Log enqueues e. When the queue is full the event is dropped and logged locally.
func (s *HTTPSink) Log(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	e.Details = redact(e.Details)

	select {
	case <-s.done:
		s.logger.WarnContext(ctx, "audit_dropped", "reason", "closed", "action", e.Action)
		return
	default:
	}
	select {
	case s.queue <- e:
	default:
		s.logger.WarnContext(ctx, "audit_dropped", "reason", "queue_full", "action", e.Action)
	}
}

func (s *HTTPSink) run() {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.queue:
			s.deliver(e)
		case <-s.done:
			for {
				select {
				case e := <-s.queue:
					s.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (s *HTTPSink) deliver(e Event) {
	if err := s.post(e); err != nil {
		s.logger.Warn("audit_delivery_failed", "action", e.Action, "error", err.Error())
	}
}

func (s *HTTPSink) post(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("audit sink returned %d", resp.StatusCode)
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered or ctx to end.
func (s *HTTPSink) Close(ctx context.Context) error {
	s.once.Do(func() { close(s.done) })
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
