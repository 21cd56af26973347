package queue

import (
	"context"
	"testing"
	"time"
)

func TestFramingSurvivesPipesInBody(t *testing.T) {
	t.Parallel()
	accepted := CheckinAccepted{
		EventID:    "evt-1",
		SessionID:  "sess-1",
		CourseID:   "course|with|pipes",
		StudentID:  "stu-1",
		RecordedAt: time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC),
	}
	msg, err := NewCheckinMessage(accepted)
	if err != nil {
		t.Fatalf("NewCheckinMessage: %v", err)
	}

	// Only the first pipe separates type from body.
	got := deserialize(serialize(msg))
	if got.Type != TypeCheckin {
		t.Errorf("type = %q", got.Type)
	}
	decoded, err := DecodeCheckin(got)
	if err != nil {
		t.Fatalf("DecodeCheckin: %v", err)
	}
	if decoded != accepted {
		t.Errorf("round trip changed message: %+v", decoded)
	}
}

func TestInMemoryPublishConsume(t *testing.T) {
	t.Parallel()
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	want := Message{Type: TypeCheckin, Body: []byte(`{}`)}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-msgs:
		if got.Type != want.Type || string(got.Body) != string(want.Body) {
			t.Errorf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}
