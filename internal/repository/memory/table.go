package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/utafrali/shopindex/internal/domain"
	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

// table is a mutex-guarded map of records kept in id order on read.
type table[T domain.Entity] struct {
	mu       sync.RWMutex
	resource string
	rows     map[uuid.UUID]T
	clone    func(T) T
}

func newTable[T domain.Entity](resource string, clone func(T) T) *table[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &table[T]{resource: resource, rows: make(map[uuid.UUID]T), clone: clone}
}

func lessID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func (t *table[T]) sorted(pred func(T) bool) []T {
	out := make([]T, 0, len(t.rows))
	for _, v := range t.rows {
		if pred == nil || pred(v) {
			out = append(out, t.clone(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].Ref().ID, out[j].Ref().ID) })
	return out
}

// mutate applies fn to every row matching pred.
func (t *table[T]) mutate(pred func(T) bool, fn func(*T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, v := range t.rows {
		if pred(v) {
			fn(&v)
			t.rows[id] = v
		}
	}
}

func (t *table[T]) filter(pred func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sorted(pred)
}

// repo adapts a table to repository.Repository.
type repo[T domain.Entity] struct {
	t *table[T]
}

func (r repo[T]) Create(_ context.Context, v *T) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	id := (*v).Ref().ID
	if _, ok := r.t.rows[id]; ok {
		return apperrors.AlreadyExists(r.t.resource, "id", id.String())
	}
	r.t.rows[id] = r.t.clone(*v)
	return nil
}

func (r repo[T]) GetByID(_ context.Context, id uuid.UUID) (*T, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()
	v, ok := r.t.rows[id]
	if !ok {
		return nil, apperrors.NotFound(r.t.resource, id.String())
	}
	c := r.t.clone(v)
	return &c, nil
}

func (r repo[T]) Update(_ context.Context, v *T) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	id := (*v).Ref().ID
	if _, ok := r.t.rows[id]; !ok {
		return apperrors.NotFound(r.t.resource, id.String())
	}
	r.t.rows[id] = r.t.clone(*v)
	return nil
}

func (r repo[T]) Delete(_ context.Context, id uuid.UUID) error {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	if _, ok := r.t.rows[id]; !ok {
		return apperrors.NotFound(r.t.resource, id.String())
	}
	delete(r.t.rows, id)
	return nil
}

func (r repo[T]) List(_ context.Context, offset, limit int) ([]T, int, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()
	all := r.t.sorted(nil)
	total := len(all)
	if offset >= total {
		return []T{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r repo[T]) ListAfter(_ context.Context, after uuid.UUID, limit int) ([]T, error) {
	r.t.mu.RLock()
	defer r.t.mu.RUnlock()
	page := r.t.sorted(func(v T) bool { return lessID(after, v.Ref().ID) })
	if len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}
