package tracing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureExporter struct {
	mu       sync.Mutex
	steps    []Step
	shutdown bool
}

func (e *captureExporter) ExportSteps(ctx context.Context, steps []Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps = append(e.steps, steps...)
}

func (e *captureExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
	return nil
}

func (e *captureExporter) exported() []Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Step(nil), e.steps...)
}

func TestCollectorFlushesToExporter(t *testing.T) {
	exp := &captureExporter{}
	c := NewCollector(WithFlushInterval(10 * time.Millisecond))
	c.SetExporter(exp)
	run := c.BeginRun("checkout")
	c.Start()

	c.Step("find", time.Now(), nil, map[string]string{"locator": "css:#go"})
	c.Step("dialog.open", time.Now(), errors.New("boom"), nil)

	deadline := time.After(2 * time.Second)
	for len(exp.exported()) < 2 {
		select {
		case <-deadline:
			t.Fatal("steps never reached the exporter")
		case <-time.After(5 * time.Millisecond):
		}
	}
	c.Stop()

	steps := exp.exported()
	if steps[0].RunID != run || steps[1].RunID != run {
		t.Error("steps not tagged with the run ID")
	}
	if steps[0].Scenario != "checkout" {
		t.Errorf("Scenario = %q, want checkout", steps[0].Scenario)
	}
	if steps[1].Error != "boom" {
		t.Errorf("Error = %q, want boom", steps[1].Error)
	}
	if !exp.shutdown {
		t.Error("Stop did not shut the exporter down")
	}
}

func TestCollectorStopDrainsBuffer(t *testing.T) {
	exp := &captureExporter{}
	// Long interval: only the Stop drain can deliver the steps.
	c := NewCollector(WithFlushInterval(time.Hour))
	c.SetExporter(exp)
	c.BeginRun("drain")
	c.Start()

	for i := 0; i < 5; i++ {
		c.Step("find", time.Now(), nil, nil)
	}
	c.Stop()

	if got := len(exp.exported()); got != 5 {
		t.Errorf("exported %d steps, want 5", got)
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(WithBufferSize(2), WithFlushInterval(time.Hour))
	// No Start: nothing drains the channel.
	for i := 0; i < 5; i++ {
		c.Step("find", time.Now(), nil, nil)
	}
	if got := len(c.stepCh); got != 2 {
		t.Errorf("buffered %d steps, want 2 (rest dropped)", got)
	}
}

func TestTruncateAttr(t *testing.T) {
	long := strings.Repeat("x", attrMaxLen+100)
	got := truncateAttr(long)
	if len(got) != attrMaxLen+3 {
		t.Errorf("len = %d, want %d", len(got), attrMaxLen+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("missing ellipsis")
	}

	if got := truncateAttr("short"); got != "short" {
		t.Errorf("short value mangled: %q", got)
	}

	// Never split a rune at the cut point.
	runes := strings.Repeat("é", attrMaxLen)
	cut := truncateAttr(runes)
	if !strings.HasSuffix(cut, "...") {
		t.Error("missing ellipsis on multibyte input")
	}
	if !strings.HasPrefix(cut, "é") || strings.ContainsRune(cut, '�') {
		t.Error("multibyte truncation produced invalid text")
	}
}
