package auditevent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthnet/healthnet/internal/platform/httperr"
)

type mockRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*AuditEvent
	failed bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{events: make(map[uuid.UUID]*AuditEvent)}
}

func (m *mockRepo) Create(ctx context.Context, e *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return context.DeadlineExceeded
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.events[e.ID] = e
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, httperr.NotFound("audit event not found")
	}
	return e, nil
}

func (m *mockRepo) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AuditEvent
	for _, e := range m.events {
		if a, ok := params["action"]; ok && e.Action != a {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *mockRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSearchRejectsUnknownAction(t *testing.T) {
	svc := NewService(newMockRepo())
	_, _, err := svc.Search(context.Background(), map[string]string{"action": "explode"}, 20, 0)
	if !httperr.IsKind(err, httperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestSearchFiltersByAction(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	repo.Create(ctx, &AuditEvent{Action: ActionLogin, EntityType: "user"})
	repo.Create(ctx, &AuditEvent{Action: ActionScan, EntityType: "qr_code"})

	items, total, err := svc.Search(ctx, map[string]string{"action": ActionScan}, 20, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 scan event, got %d", total)
	}
	if items[0].EntityType != "qr_code" {
		t.Fatalf("unexpected entity type %q", items[0].EntityType)
	}
}

func TestRecorderWritesInBackground(t *testing.T) {
	repo := newMockRepo()
	rec := NewRecorder(repo, zerolog.Nop())

	actor := uuid.New()
	rec.Record(Entry{
		ActorUserID: &actor,
		Action:      ActionCreate,
		EntityType:  "diagnosis",
		After:       map[string]string{"status": "PENDING"},
	})

	waitFor(t, func() bool { return repo.count() == 1 })

	items, _, _ := repo.Search(context.Background(), nil, 20, 0)
	if items[0].After == nil {
		t.Fatal("expected after snapshot to be marshaled")
	}
}

func TestRecorderSwallowsFailure(t *testing.T) {
	repo := newMockRepo()
	repo.failed = true
	rec := NewRecorder(repo, zerolog.Nop())

	// Must not panic or block the caller.
	rec.Record(Entry{Action: ActionDelete, EntityType: "assignment"})
	time.Sleep(50 * time.Millisecond)
	if repo.count() != 0 {
		t.Fatal("expected no events recorded")
	}
}
