package paginate

import (
	"context"
	"errors"
	"testing"
)

func TestAllExhaustsFullPages(t *testing.T) {
	all := []int{1, 2, 3, 4, 5, 6, 7}
	fetch := func(ctx context.Context, offset, size int) ([]int, error) {
		end := offset + size
		if end > len(all) {
			end = len(all)
		}
		if offset >= len(all) {
			return nil, nil
		}
		return all[offset:end], nil
	}

	got := All[int](context.Background(), 3, fetch, nil)
	if len(got) != len(all) {
		t.Fatalf("expected %d rows, got %d", len(all), len(got))
	}
	for i, v := range got {
		if v != all[i] {
			t.Errorf("index %d: expected %d, got %d", i, all[i], v)
		}
	}
}

func TestAllStopsOnShortPage(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, offset, size int) ([]int, error) {
		calls++
		if offset == 0 {
			return []int{1, 2}, nil
		}
		return nil, nil
	}

	got := All[int](context.Background(), 2, fetch, nil)
	if len(got) != 2 {
		t.Errorf("expected 2 rows, got %d", len(got))
	}
	if calls != 1 {
		t.Errorf("expected pagination to stop after the short page without another call, got %d calls", calls)
	}
}

func TestAllReturnsAccumulatedRowsOnError(t *testing.T) {
	fetch := func(ctx context.Context, offset, size int) ([]int, error) {
		if offset == 0 {
			return []int{1, 2, 3}, nil
		}
		return nil, errors.New("backend unavailable")
	}

	got := All[int](context.Background(), 3, fetch, nil)
	if len(got) != 3 {
		t.Errorf("expected 3 accumulated rows despite the error, got %d", len(got))
	}
}
