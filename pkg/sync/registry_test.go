package sync

import (
	"context"
	"testing"
)

func TestRegistry_ProgressAndCancel(t *testing.T) {
	registry := NewRegistry()

	var cancelled bool
	handle := registry.register("run-1", "full", 100, func() { cancelled = true })
	handle.update(func(p *Progress) { p.ProcessedCount = 40 })

	progress, ok := registry.Progress("run-1")
	if !ok {
		t.Fatal("expected run to be known")
	}
	if progress.ProcessedCount != 40 {
		t.Errorf("expected processed_count 40, got %d", progress.ProcessedCount)
	}
	if progress.Percent() != 40 {
		t.Errorf("expected 40%%, got %f", progress.Percent())
	}

	if !registry.Cancel("run-1") {
		t.Error("expected cancel of a running sync to succeed")
	}
	if !cancelled {
		t.Error("expected cancel func to be invoked")
	}
}

func TestRegistry_CancelUnknownOrFinished(t *testing.T) {
	registry := NewRegistry()

	if registry.Cancel("nope") {
		t.Error("expected cancel of unknown run to fail")
	}

	handle := registry.register("run-2", "full", 10, func() {
		t.Error("cancel must not be invoked on a finished run")
	})
	handle.update(func(p *Progress) { p.State = RunStateCompleted })

	if registry.Cancel("run-2") {
		t.Error("expected cancel of finished run to fail")
	}
}

func TestRegistry_ActiveCount(t *testing.T) {
	registry := NewRegistry()
	cancel := func() {}

	registry.register("a", "full", 10, context.CancelFunc(cancel))
	h := registry.register("b", "targeted", 10, context.CancelFunc(cancel))
	h.update(func(p *Progress) { p.State = RunStateFailed })

	if got := registry.ActiveCount(); got != 1 {
		t.Errorf("expected 1 active run, got %d", got)
	}
	if got := len(registry.List()); got != 2 {
		t.Errorf("expected 2 known runs, got %d", got)
	}
}
