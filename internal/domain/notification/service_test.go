package notification

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthnet/healthnet/internal/platform/httperr"
)

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Notification
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Notification)}
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.items[n.ID] = n
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return n, nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Notification
	for _, n := range m.items {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		result = append(result, n)
	}
	return result, len(result), nil
}

func (m *mockRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.items[id]; ok {
		n.Read = true
	}
	return nil
}

func (m *mockRepo) MarkAllRead(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.UserID == userID {
			n.Read = true
		}
	}
	return nil
}

func (m *mockRepo) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.items {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func TestCreate(t *testing.T) {
	svc := NewService(newMockRepo())
	n := &Notification{UserID: uuid.New(), Title: "New assignment", Kind: KindAssignment}
	if err := svc.Create(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
}

func TestCreate_DefaultsKind(t *testing.T) {
	svc := NewService(newMockRepo())
	n := &Notification{UserID: uuid.New(), Title: "hello"}
	if err := svc.Create(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kind != KindSystem {
		t.Errorf("expected kind system, got %s", n.Kind)
	}
}

func TestCreate_InvalidKind(t *testing.T) {
	svc := NewService(newMockRepo())
	n := &Notification{UserID: uuid.New(), Title: "hello", Kind: "carrier_pigeon"}
	if err := svc.Create(context.Background(), n); err == nil {
		t.Error("expected error for invalid kind")
	}
}

func TestMarkRead_WrongUser(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	n := &Notification{UserID: uuid.New(), Title: "hi", Kind: KindSystem}
	svc.Create(context.Background(), n)

	err := svc.MarkRead(context.Background(), n.ID, uuid.New())
	if !httperr.IsKind(err, httperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if n.Read {
		t.Error("notification should stay unread")
	}
}

func TestMarkAllRead(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		svc.Create(context.Background(), &Notification{UserID: userID, Title: "n", Kind: KindSystem})
	}

	if err := svc.MarkAllRead(context.Background(), userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, _ := svc.UnreadCount(context.Background(), userID)
	if count != 0 {
		t.Errorf("expected 0 unread, got %d", count)
	}
}

func TestNotifier_FireAndForget(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	notifier := NewNotifier(svc, logger)

	userID := uuid.New()
	notifier.Notify(userID, KindDiagnosis, "New diagnosis", "Dr. A recorded a diagnosis")

	// Dispatch is async; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count, _ := svc.UnreadCount(context.Background(), userID); count == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("notification never arrived")
}
