package testutil

import (
	"Homestead/internal/model"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	mongoDB "go.mongodb.org/mongo-driver/mongo"
)

// MemoryNotificationRepo 内存版通知存储，语义与 Mongo 实现一致
type MemoryNotificationRepo struct {
	mu    sync.Mutex
	items map[string]*model.Notification
	seq   atomic.Int64

	// ListErr 非空时 List 返回该错误
	ListErr error
}

func NewMemoryNotificationRepo() *MemoryNotificationRepo {
	return &MemoryNotificationRepo{items: make(map[string]*model.Notification)}
}

func (r *MemoryNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = fmt.Sprintf("n-%04d", r.seq.Add(1))
	}
	if _, ok := r.items[n.ID]; ok {
		return errors.New("duplicate key")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	r.items[n.ID] = clone(n)
	return nil
}

func (r *MemoryNotificationRepo) List(_ context.Context) ([]*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	list := make([]*model.Notification, 0, len(r.items))
	for _, n := range r.items {
		list = append(list, clone(n))
	}
	slices.SortFunc(list, func(a, b *model.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return list, nil
}

func (r *MemoryNotificationRepo) GetByID(_ context.Context, id string) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, mongoDB.ErrNoDocuments
	}
	return clone(n), nil
}

func (r *MemoryNotificationRepo) Delete(_ context.Context, id string) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	delete(r.items, id)
	return n, nil
}

func (r *MemoryNotificationRepo) Update(_ context.Context, id string, patch *model.NotificationPatch) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, mongoDB.ErrNoDocuments
	}
	if patch.Read != nil {
		n.Read = *patch.Read
	}
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Message != nil {
		n.Message = *patch.Message
	}
	if patch.Category != nil {
		n.Category = *patch.Category
	}
	if patch.Priority != nil {
		n.Priority = *patch.Priority
	}
	return clone(n), nil
}

func (r *MemoryNotificationRepo) DeleteReadBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, item := range r.items {
		if item.Read && item.CreatedAt.Before(before) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryNotificationRepo) EnsureIndexes(context.Context) error { return nil }

// Len 当前记录数
func (r *MemoryNotificationRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func clone(n *model.Notification) *model.Notification {
	return model.CloneSnapshot([]*model.Notification{n})[0]
}
