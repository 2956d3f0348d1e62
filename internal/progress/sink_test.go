package progress

import (
	"strings"
	"testing"
	"time"
)

func TestPlainSinkFormatting(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)

	tests := []struct {
		name  string
		event Event
		want  []string
	}{
		{
			name:  "job started",
			event: Event{Type: EventJobStarted, At: at, JobID: "j1", Message: "/srv/app"},
			want:  []string{"09:30:15", "job j1 started", "repo=/srv/app"},
		},
		{
			name:  "phase finished",
			event: Event{Type: EventPhaseFinished, At: at, Phase: PhaseDetection, FindingCount: 3, DurationMS: 120},
			want:  []string{"phase detection finished", "findings=3", "duration=120ms"},
		},
		{
			name:  "file scanned with findings",
			event: Event{Type: EventFileScanned, At: at, File: "a.py", Status: "vulnerable", FindingCount: 2},
			want:  []string{"file a.py", "status=vulnerable", "findings=2"},
		},
		{
			name:  "job failed",
			event: Event{Type: EventJobFinished, At: at, JobID: "j1", Status: "failed", Error: "boom"},
			want:  []string{"status=failed", "error=boom"},
		},
		{
			name:  "warning",
			event: Event{Type: EventJobWarning, At: at, Message: "rule diagnostic"},
			want:  []string{"warning: rule diagnostic"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			NewPlainSink(&buf).Emit(tt.event)
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestPlainSinkUnknownTypeSilent(t *testing.T) {
	var buf strings.Builder
	NewPlainSink(&buf).Emit(Event{Type: "mystery"})
	if buf.Len() != 0 {
		t.Errorf("unknown event type produced output: %q", buf.String())
	}
}

func TestChannelSinkDelivery(t *testing.T) {
	ch := make(chan Event, 1)
	sink := NewChannelSink(ch)

	sink.Emit(Event{Type: EventJobStarted, JobID: "j1"})
	select {
	case e := <-ch:
		if e.JobID != "j1" {
			t.Errorf("JobID = %q", e.JobID)
		}
		if e.At.IsZero() {
			t.Error("timestamp should be stamped on emit")
		}
	default:
		t.Fatal("event not delivered")
	}
}

func TestChannelSinkDropsOnBackpressure(t *testing.T) {
	ch := make(chan Event, 1)
	sink := NewChannelSink(ch)

	sink.Emit(Event{Type: EventFileScanned, File: "a.py"})
	// The buffer is full: the second emit must return instead of blocking.
	done := make(chan struct{})
	go func() {
		sink.Emit(Event{Type: EventFileScanned, File: "b.py"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full channel")
	}

	if got := <-ch; got.File != "a.py" {
		t.Errorf("surviving event = %q, want the first", got.File)
	}
}

func TestSinkFunc(t *testing.T) {
	var got Event
	SinkFunc(func(e Event) { got = e }).Emit(Event{Type: EventJobFinished})
	if got.Type != EventJobFinished {
		t.Errorf("Type = %q", got.Type)
	}
}
