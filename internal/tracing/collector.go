// Package tracing records one span per resilience-layer step and
// batches them out to an external backend. The collector implements
// the browser session's Observer hook, so attaching it is one option
// on session construction.
package tracing

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	attrMaxLen           = 500
)

// Step is one completed resilience-layer operation: a find, a dialog
// open, a navigation. RunID groups the steps of one scenario run.
type Step struct {
	ID       uuid.UUID
	RunID    uuid.UUID
	Scenario string
	Name     string
	Start    time.Time
	End      time.Time
	Error    string
	Attrs    map[string]string
}

// SpanExporter is implemented by backends that receive step batches
// (e.g. OpenTelemetry OTLP). Keeping this as an interface lets the
// OTel dependency live in a separate sub-package.
type SpanExporter interface {
	ExportSteps(ctx context.Context, steps []Step)
	Shutdown(ctx context.Context) error
}

// Collector buffers steps in memory and periodically flushes them in
// batches. Emission is non-blocking: when the buffer is full the step
// is dropped with a warning, never stalling the scenario.
type Collector struct {
	stepCh chan Step
	stopCh chan struct{}
	wg     sync.WaitGroup

	flushInterval time.Duration

	mu       sync.Mutex
	runID    uuid.UUID
	scenario string

	verbose  bool         // when true, attribute values are not truncated
	exporter SpanExporter // optional external exporter (nil = disabled)
}

// Option configures a Collector.
type Option func(*Collector)

// WithBufferSize overrides the step buffer capacity.
func WithBufferSize(n int) Option {
	return func(c *Collector) { c.stepCh = make(chan Step, n) }
}

// WithFlushInterval overrides the batch flush period.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Collector) { c.flushInterval = d }
}

// NewCollector creates a step collector.
// Set HOLDFAST_TRACE_VERBOSE=1 to keep full attribute values in spans.
func NewCollector(opts ...Option) *Collector {
	verbose := os.Getenv("HOLDFAST_TRACE_VERBOSE") != ""
	if verbose {
		slog.Info("tracing: verbose mode enabled (HOLDFAST_TRACE_VERBOSE)")
	}
	c := &Collector{
		stepCh:        make(chan Step, defaultBufferSize),
		stopCh:        make(chan struct{}),
		flushInterval: defaultFlushInterval,
		verbose:       verbose,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Verbose reports whether full attribute values are recorded.
func (c *Collector) Verbose() bool { return c.verbose }

// SetExporter attaches an external span exporter. When set, buffered
// steps are exported during each flush cycle.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// BeginRun starts a new scenario run and returns its ID. Steps emitted
// after this call carry the new run's identity.
func (c *Collector) BeginRun(scenario string) uuid.UUID {
	id := uuid.New()
	c.mu.Lock()
	c.runID = id
	c.scenario = scenario
	c.mu.Unlock()
	slog.Debug("tracing: run started", "run", id, "scenario", scenario)
	return id
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Info("tracing collector started")
}

// Stop shuts down the collector, flushing remaining steps.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("tracing: span exporter shutdown failed", "error", err)
		}
	}

	slog.Info("tracing collector stopped")
}

// Step implements the browser Observer hook. It enqueues one span and
// returns immediately; a full buffer drops the span.
func (c *Collector) Step(name string, start time.Time, err error, attrs map[string]string) {
	c.mu.Lock()
	runID, scenario := c.runID, c.scenario
	c.mu.Unlock()

	s := Step{
		ID:       uuid.New(),
		RunID:    runID,
		Scenario: scenario,
		Name:     name,
		Start:    start,
		End:      time.Now().UTC(),
	}
	if err != nil {
		s.Error = err.Error()
	}
	if len(attrs) > 0 {
		s.Attrs = make(map[string]string, len(attrs))
		for k, v := range attrs {
			if !c.verbose {
				v = truncateAttr(v)
			}
			s.Attrs[k] = v
		}
	}

	select {
	case c.stepCh <- s:
	default:
		slog.Warn("tracing: step buffer full, dropping span", "name", name)
	}
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			// Drain remaining steps
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var steps []Step
	for {
		select {
		case s := <-c.stepCh:
			steps = append(steps, s)
		default:
			goto done
		}
	}
done:

	if len(steps) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.exporter != nil {
		c.exporter.ExportSteps(ctx, steps)
	}
	slog.Debug("tracing: flushed steps", "count", len(steps))
}

// truncateAttr sanitizes and truncates an attribute value to
// attrMaxLen bytes without splitting a rune.
func truncateAttr(s string) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= attrMaxLen {
		return s
	}
	maxLen := attrMaxLen
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
