package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJobTransitions(t *testing.T) {
	now := time.Now()
	cases := []struct {
		from, to string
		ok       bool
	}{
		{JobPending, JobRunning, true},
		{JobPending, JobFailed, true},
		{JobPending, JobCancelled, true},
		{JobPending, JobCompleted, false},
		{JobRunning, JobCompleted, true},
		{JobRunning, JobFailed, true},
		{JobRunning, JobCancelled, true},
		{JobRunning, JobPending, false},
	}
	for _, tc := range cases {
		j := Job{ID: "j", Status: tc.from}
		err := j.Transition(tc.to, now)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s: expected ErrInvalidTransition got %v", tc.from, tc.to, err)
			}
			if j.Status != tc.from {
				t.Fatalf("status mutated on rejected transition: %s", j.Status)
			}
		}
	}
}

func TestTerminalJobIsFinal(t *testing.T) {
	all := []string{JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled}
	for _, terminal := range []string{JobCompleted, JobFailed, JobCancelled} {
		for _, to := range all {
			j := Job{ID: "j", Status: terminal}
			err := j.Transition(to, time.Now())
			var te *TransitionError
			if !errors.As(err, &te) {
				t.Fatalf("%s -> %s: expected TransitionError got %v", terminal, to, err)
			}
			if te.From != terminal || te.To != to {
				t.Fatalf("unexpected error fields %+v", te)
			}
		}
	}
}

func TestJobTimestamps(t *testing.T) {
	now := time.Now()
	j := Job{ID: "j", Status: JobPending}
	if err := j.Start(now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if j.StartedAt == nil || j.FinishedAt != nil {
		t.Fatalf("expected started_at only, got %+v", j)
	}
	if err := j.Complete(JobOutput{Model: "m", TotalTokens: 3}, now.Add(time.Second)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.FinishedAt == nil || j.Output == nil || j.Output.TotalTokens != 3 {
		t.Fatalf("expected finished job with output, got %+v", j)
	}
}

func TestFailTruncatesMessage(t *testing.T) {
	j := Job{ID: "j", Status: JobRunning}
	if err := j.Fail(strings.Repeat("x", 5000), time.Now()); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if j.Error == nil || len(*j.Error) != MaxErrorLength {
		t.Fatalf("expected error truncated to %d", MaxErrorLength)
	}

	p := Project{ID: "p", Status: ProjectGenerating}
	if err := p.Fail(strings.Repeat("я", 1500), time.Now()); err != nil {
		t.Fatalf("fail project: %v", err)
	}
	if got := len([]rune(*p.Error)); got != MaxErrorLength {
		t.Fatalf("expected %d runes got %d", MaxErrorLength, got)
	}
	if p.HasArtifacts() {
		t.Fatalf("failed project must not carry artifacts")
	}
}

func TestProjectPublishRequiresGenerating(t *testing.T) {
	b := Bundle{Markup: "<html>", Stylesheet: "body{}", Script: "x()"}

	draft := Project{ID: "p", Status: ProjectDraft}
	if err := draft.Publish(b, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
	if draft.HasArtifacts() {
		t.Fatalf("artifacts written despite rejected transition")
	}

	p := Project{ID: "p", Status: ProjectDraft}
	if err := p.BeginGeneration(time.Now()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := p.Publish(b, time.Now()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if p.Status != ProjectReady || p.CompletedAt == nil || p.Markup != "<html>" {
		t.Fatalf("unexpected project %+v", p)
	}
	if err := p.Publish(Bundle{Markup: "other"}, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ready project accepted a second publish: %v", err)
	}
	if p.Markup != "<html>" {
		t.Fatalf("artifacts changed after ready")
	}
	if err := p.Fail("late", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ready project accepted fail: %v", err)
	}
}

func TestNewJobSnapshotsInput(t *testing.T) {
	p := Project{ID: "p", UserID: "u", Title: "T", Prompt: "original prompt", TechStack: TechStackStatic, ColorSchemeHint: "dark"}
	j := NewJob("j", p, KindFrontendGeneration, ExecutorLocal, time.Now())
	p.Prompt = "edited later"
	if j.Input.Prompt != "original prompt" {
		t.Fatalf("job input follows project edits: %q", j.Input.Prompt)
	}
	if j.Status != JobPending {
		t.Fatalf("expected pending got %s", j.Status)
	}
}
