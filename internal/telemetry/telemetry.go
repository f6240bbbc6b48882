package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	httpTimeout      = 3 * time.Second
	defaultQueueSize = 256
)

// Event describes one unhandled defect: a panic, a store failure or a
// GitHub outage that surfaced to a client as a generic 500.
type Event struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Message   string            `json:"message"`
	Error     string            `json:"error"`
	RequestID string            `json:"request_id,omitempty"`
	Method    string            `json:"method,omitempty"`
	Path      string            `json:"path,omitempty"`
	Stack     string            `json:"stack,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Reporter receives unhandled defects. Implementations must not block the
// request path and must never fail it.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(message string, err error) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Message:   message,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// ---------------------------------------------------------------------------
// LogReporter
// ---------------------------------------------------------------------------

// LogReporter writes defects to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter returns a reporter that logs at error level.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(ctx context.Context, ev Event) {
	attrs := []any{
		"event_id", ev.ID,
		"error", ev.Error,
	}
	if ev.RequestID != "" {
		attrs = append(attrs, "request_id", ev.RequestID)
	}
	if ev.Path != "" {
		attrs = append(attrs, "method", ev.Method, "path", ev.Path)
	}
	if ev.Stack != "" {
		attrs = append(attrs, "stack", ev.Stack)
	}
	r.logger.ErrorContext(ctx, ev.Message, attrs...)
}

// ---------------------------------------------------------------------------
// HTTPReporter
// ---------------------------------------------------------------------------

// HTTPReporter posts defects as JSON to a collector endpoint from a
// background goroutine. When the queue is full new events are dropped.
type HTTPReporter struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	host     string

	queue  chan Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewHTTPReporter returns nil when endpoint is empty or telemetry is
// disabled through RECONNOITER_TELEMETRY. A nil *HTTPReporter is a no-op.
func NewHTTPReporter(endpoint string, logger *slog.Logger) *HTTPReporter {
	if endpoint == "" {
		return nil
	}
	if envVal := os.Getenv("RECONNOITER_TELEMETRY"); envVal == "0" || envVal == "false" || envVal == "off" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	host, _ := os.Hostname()
	return &HTTPReporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: httpTimeout},
		logger:   logger,
		host:     host,
		queue:    make(chan Event, defaultQueueSize),
	}
}

// Start begins the background delivery loop. Non-blocking.
func (r *HTTPReporter) Start() {
	if r == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case ev := <-r.queue:
				r.send(ev)
			case <-ctx.Done():
				r.drain()
				return
			}
		}
	}()
}

// Report enqueues ev without blocking.
func (r *HTTPReporter) Report(_ context.Context, ev Event) {
	if r == nil {
		return
	}
	if ev.Tags == nil {
		ev.Tags = map[string]string{}
	}
	ev.Tags["host"] = r.host
	ev.Tags["go_version"] = runtime.Version()

	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("telemetry queue full, event dropped", "event_id", ev.ID)
	}
}

// Shutdown stops the loop after delivering queued events.
func (r *HTTPReporter) Shutdown() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
	})
}

func (r *HTTPReporter) drain() {
	for {
		select {
		case ev := <-r.queue:
			r.send(ev)
		default:
			return
		}
	}
}

func (r *HTTPReporter) send(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("telemetry delivery failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		r.logger.Debug("telemetry collector rejected event", "status", resp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Fan-out
// ---------------------------------------------------------------------------

// Multi fans an event out to several reporters, skipping nil entries.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, ev)
		}
	}
}

// Describe returns a one-line summary for startup logs.
func Describe(endpoint string) string {
	if endpoint == "" {
		return "log only"
	}
	return fmt.Sprintf("log + %s", endpoint)
}
