package jobs

import (
	"errors"
	"testing"

	"audiobook-forge/backend/internal/pipeline"
)

func newTestManager() *Manager {
	return NewManager(NewEventBus(100))
}

func TestManagerSingleActiveJob(t *testing.T) {
	m := newTestManager()

	job, ctx, err := m.Start("/books/one.epub")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.ID == "" {
		t.Fatal("job has no ID")
	}
	if ctx == nil {
		t.Fatal("start returned nil context")
	}
	if job.Stage != pipeline.StageParsing {
		t.Errorf("stage = %s, want %s", job.Stage, pipeline.StageParsing)
	}

	if _, _, err := m.Start("/books/two.epub"); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("second start: %v, want ErrJobAlreadyRunning", err)
	}

	// A terminal job frees the slot.
	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageFailed, Error: "boom"})
	if _, _, err := m.Start("/books/two.epub"); err != nil {
		t.Fatalf("start after failure: %v", err)
	}
}

func TestManagerApplyFoldsState(t *testing.T) {
	m := newTestManager()
	job, _, _ := m.Start("/books/one.epub")

	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageGenerating, Fraction: 0.4, Message: "42/100"})

	got, ok := m.Get(job.ID)
	if !ok {
		t.Fatal("job not found")
	}
	if got.Stage != pipeline.StageGenerating || got.Fraction != 0.4 || got.Message != "42/100" {
		t.Errorf("job = %+v", got)
	}

	// Fractions never move backwards.
	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageGenerating, Fraction: 0.1})
	got, _ = m.Get(job.ID)
	if got.Fraction != 0.4 {
		t.Errorf("fraction regressed to %f", got.Fraction)
	}

	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageComplete, Fraction: 0.98})
	got, _ = m.Get(job.ID)
	if got.Fraction != 1.0 {
		t.Errorf("complete job fraction = %f, want 1.0", got.Fraction)
	}
	if !got.Terminal() {
		t.Error("complete job not terminal")
	}
}

func TestManagerApplyPublishesTypedEvents(t *testing.T) {
	bus := NewEventBus(100)
	m := NewManager(bus)
	job, _, _ := m.Start("/books/one.epub")

	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageGenerating, Fraction: 0.5})
	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageFailed, Error: "tts unavailable"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("bus has %d events, want 2", len(events))
	}
	if events[0].Type != EventTypeProgress {
		t.Errorf("first event type = %s, want progress", events[0].Type)
	}
	if events[1].Type != EventTypeError || events[1].Error != "tts unavailable" {
		t.Errorf("second event = %+v, want error type", events[1])
	}
	if events[0].JobID != job.ID {
		t.Errorf("event jobID = %s, want %s", events[0].JobID, job.ID)
	}
}

func TestManagerApplyUnknownJobIsNoop(t *testing.T) {
	bus := NewEventBus(100)
	m := NewManager(bus)

	m.Apply("no-such-job", pipeline.Event{Stage: pipeline.StageGenerating})
	if events := bus.Since(0); len(events) != 0 {
		t.Errorf("unknown job published %d events", len(events))
	}
}

func TestManagerCancel(t *testing.T) {
	m := newTestManager()
	job, ctx, _ := m.Start("/books/one.epub")

	if err := m.Cancel(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel did not cancel the job context")
	}

	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageCancelled})
	if err := m.Cancel(job.ID); !errors.Is(err, ErrNoRunningJob) {
		t.Errorf("cancel terminal job: %v, want ErrNoRunningJob", err)
	}

	if err := m.Cancel("no-such-job"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("cancel unknown job: %v, want ErrUnknownJob", err)
	}
}

func TestManagerActiveAndFinish(t *testing.T) {
	m := newTestManager()

	if _, ok := m.Active(); ok {
		t.Fatal("idle manager reports an active job")
	}

	job, _, _ := m.Start("/books/one.epub")
	active, ok := m.Active()
	if !ok || active.ID != job.ID {
		t.Fatalf("active = %+v, want job %s", active, job.ID)
	}

	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageComplete})
	m.Finish(job.ID, "/output/one_coral.m4b", "One", nil)

	got, _ := m.Get(job.ID)
	if got.OutputPath != "/output/one_coral.m4b" || got.BookTitle != "One" {
		t.Errorf("finished job = %+v", got)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", got.Status, StatusCompleted)
	}
}

func TestManagerPartialFailureStatus(t *testing.T) {
	bus := NewEventBus(100)
	m := NewManager(bus)
	job, _, _ := m.Start("/books/one.epub")

	failures := []pipeline.ItemFailure{
		{ItemID: "ch_003_c0001_ab12cd34", Reason: "tts: fatal: rejected"},
		{ItemID: "ch_007_c0000_9f8e7d6c", Reason: "tts: fatal: rejected"},
	}
	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageComplete, Fraction: 1.0, Failures: failures})
	m.Finish(job.ID, "/output/one_coral.wav", "One", failures)

	got, _ := m.Get(job.ID)
	if got.Status != StatusCompletedWithFailures {
		t.Errorf("status = %s, want %s", got.Status, StatusCompletedWithFailures)
	}
	if len(got.Failures) != 2 || got.Failures[0].ItemID != "ch_003_c0001_ab12cd34" {
		t.Errorf("failures = %+v", got.Failures)
	}

	// The published result event carries the failure details too.
	events := bus.Since(0)
	last := events[len(events)-1]
	if last.Type != EventTypeResult {
		t.Fatalf("last event type = %s, want result", last.Type)
	}
	if len(last.Failures) != 2 {
		t.Errorf("result event failures = %+v, want 2 entries", last.Failures)
	}
}

func TestManagerStatusTransitions(t *testing.T) {
	m := newTestManager()

	job, _, _ := m.Start("/books/one.epub")
	if job.Status != StatusRunning {
		t.Errorf("new job status = %s, want %s", job.Status, StatusRunning)
	}

	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageGenerating, Fraction: 0.5})
	got, _ := m.Get(job.ID)
	if got.Status != StatusRunning {
		t.Errorf("generating status = %s, want %s", got.Status, StatusRunning)
	}

	m.Apply(job.ID, pipeline.Event{Stage: pipeline.StageCancelled})
	got, _ = m.Get(job.ID)
	if got.Status != StatusCancelled {
		t.Errorf("cancelled status = %s, want %s", got.Status, StatusCancelled)
	}
}
