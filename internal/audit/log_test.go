package audit

import (
	"testing"
	"time"
)

func TestTransform_EncodesPayloadAsJSON(t *testing.T) {
	rec := Record{
		ID:         "abc-123",
		Kind:       KindRotationCompleted,
		OccurredAt: time.Unix(1700000000, 0),
		Payload:    map[string]any{"tracked_tokens": 42},
	}

	row := transform(rec)
	if row.ID != "abc-123" {
		t.Fatalf("ID = %q", row.ID)
	}
	if row.Kind != "RotationCompleted" {
		t.Fatalf("Kind = %q", row.Kind)
	}
	if string(row.Payload) != `{"tracked_tokens":42}` {
		t.Fatalf("Payload = %s", row.Payload)
	}
}

func TestLog_Record_DropsWhenBufferFull(t *testing.T) {
	l := New(Config{BatchSize: 10, FlushInterval: time.Hour, BufferSize: 1}, nil, nil)

	l.Record(Record{Kind: KindAlertFired, OccurredAt: time.Now()})
	l.Record(Record{Kind: KindAlertFired, OccurredAt: time.Now()})

	if got := l.Stats().Dropped; got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindRotationStarted:   "RotationStarted",
		KindRotationFailed:    "RotationFailed",
		KindRotationCompleted: "RotationCompleted",
		KindAlertFired:        "AlertFired",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
