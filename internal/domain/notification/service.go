package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthnet/healthnet/internal/platform/httperr"
)

var validKinds = map[string]bool{
	KindAssignment:  true,
	KindDiagnosis:   true,
	KindLabResult:   true,
	KindAppointment: true,
	KindSystem:      true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, n *Notification) error {
	if n.UserID == uuid.Nil {
		return httperr.BadRequest("user_id is required")
	}
	if n.Title == "" {
		return httperr.BadRequest("title is required")
	}
	if n.Kind == "" {
		n.Kind = KindSystem
	}
	if !validKinds[n.Kind] {
		return httperr.BadRequest("invalid kind: %s", n.Kind)
	}
	return s.repo.Create(ctx, n)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

// MarkRead marks a notification read. Only the recipient may do so.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return httperr.NotFound("notification not found")
	}
	if n.UserID != userID {
		return httperr.Forbidden("notification belongs to another user")
	}
	return s.repo.MarkRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// Notifier dispatches in-app notifications as a best-effort side effect.
// Dispatch is fire-and-forget on a detached context: the primary write has
// already committed by the time Notify runs, and a notification failure must
// never surface to the caller. Failures are logged and dropped.
type Notifier struct {
	svc    *Service
	logger zerolog.Logger
}

func NewNotifier(svc *Service, logger zerolog.Logger) *Notifier {
	return &Notifier{svc: svc, logger: logger}
}

func (n *Notifier) Notify(userID uuid.UUID, kind, title, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := n.svc.Create(ctx, &Notification{
			UserID:  userID,
			Kind:    kind,
			Title:   title,
			Message: message,
		})
		if err != nil {
			n.logger.Error().Err(err).
				Str("user_id", userID.String()).
				Str("kind", kind).
				Msg("notification dispatch failed")
		}
	}()
}

// NotifyAll dispatches the same notification to several users.
func (n *Notifier) NotifyAll(userIDs []uuid.UUID, kind, title, message string) {
	for _, id := range userIDs {
		n.Notify(id, kind, title, message)
	}
}
