package writer_test

import (
	"context"
	"sync"
	"testing"

	"github.com/duskline/backend/writer"
)

func TestSubmitIsOrderedAndReturnsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := writer.NewRunner(8)
	go r.Run(ctx)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		v, err := r.Submit(ctx, func() (interface{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if v.(int) != i {
			t.Fatalf("expected result %d, got %v", i, v)
		}
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestPostCommitHooksRunInOrderAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := writer.NewRunner(8)

	var mu sync.Mutex
	var stages []string
	r.OnCommit(func(interface{}) { mu.Lock(); stages = append(stages, "cache"); mu.Unlock() })
	r.OnCommit(func(interface{}) { mu.Lock(); stages = append(stages, "index"); mu.Unlock() })
	r.OnCommit(func(interface{}) { mu.Lock(); stages = append(stages, "events"); mu.Unlock() })
	go r.Run(ctx)

	if _, err := r.Submit(ctx, func() (interface{}, error) { return nil, nil }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"cache", "index", "events"}
	if len(stages) != len(want) {
		t.Fatalf("expected %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, stages)
		}
	}
}

func TestPanicInClosureBecomesError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := writer.NewRunner(8)
	go r.Run(ctx)

	_, err := r.Submit(ctx, func() (interface{}, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected panic to surface as an error")
	}

	// runner must still be serving afterward
	v, err := r.Submit(ctx, func() (interface{}, error) { return "ok", nil })
	if err != nil || v.(string) != "ok" {
		t.Fatalf("expected runner to keep serving after a panic, got %v err=%v", v, err)
	}
}
