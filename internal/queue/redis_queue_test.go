package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewQueue(rdb, "test", "generation")
}

func TestQueueEnqueueReserveAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	job := &Job{GenerationID: uuid.New(), UserID: uuid.New(), OperationType: "text_to_image", Priority: PriorityNormal}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	reserved, err := q.Reserve(ctx, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if reserved.GenerationID != job.GenerationID {
		t.Fatalf("expected generation %s, got %s", job.GenerationID, reserved.GenerationID)
	}

	if err := q.Ack(ctx, reserved); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	metrics, err := q.GetMetrics(ctx)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if metrics.Processing != 0 || metrics.PendingNormal != 0 {
		t.Fatalf("expected queue drained, got %+v", metrics)
	}
}

func TestQueueHighPriorityDrainsFirst(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	low := &Job{GenerationID: uuid.New(), Priority: PriorityLow}
	high := &Job{GenerationID: uuid.New(), Priority: PriorityHigh}
	if err := q.Enqueue(ctx, low); err != nil {
		t.Fatalf("Enqueue low: %v", err)
	}
	if err := q.Enqueue(ctx, high); err != nil {
		t.Fatalf("Enqueue high: %v", err)
	}

	first, err := q.Reserve(ctx, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if first.GenerationID != high.GenerationID {
		t.Fatalf("expected high priority job first, got %s", first.GenerationID)
	}
}

func TestQueueFailRequeuesUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	job := &Job{GenerationID: uuid.New(), Priority: PriorityNormal}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for i := 0; i < q.maxAttempts; i++ {
		reserved, err := q.Reserve(ctx, 200*time.Millisecond)
		if err != nil {
			t.Fatalf("Reserve attempt %d: %v", i, err)
		}
		if err := q.Fail(ctx, reserved); err != nil {
			t.Fatalf("Fail attempt %d: %v", i, err)
		}
	}

	metrics, err := q.GetMetrics(ctx)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if metrics.Failed != 1 {
		t.Fatalf("expected job in failed list after max attempts, got %+v", metrics)
	}
}
