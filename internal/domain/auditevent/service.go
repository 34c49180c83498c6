package auditevent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthnet/healthnet/internal/platform/httperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	if a, ok := params["action"]; ok {
		switch a {
		case ActionCreate, ActionUpdate, ActionDelete, ActionRead, ActionLogin, ActionScan:
		default:
			return nil, 0, httperr.BadRequest("invalid action filter")
		}
	}
	return s.repo.Search(ctx, params, limit, offset)
}

// Recorder writes audit events asynchronously. A failed write never
// fails the operation that produced it; it is logged and dropped.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

type Entry struct {
	ActorUserID *uuid.UUID
	Action      string
	EntityType  string
	EntityID    *uuid.UUID
	Before      interface{}
	After       interface{}
	IPAddress   string
	UserAgent   string
}

func (r *Recorder) Record(entry Entry) {
	if r == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		e := &AuditEvent{
			ActorUserID: entry.ActorUserID,
			Action:      entry.Action,
			EntityType:  entry.EntityType,
			EntityID:    entry.EntityID,
			IPAddress:   entry.IPAddress,
			UserAgent:   entry.UserAgent,
		}
		if entry.Before != nil {
			b, err := json.Marshal(entry.Before)
			if err == nil {
				e.Before = b
			}
		}
		if entry.After != nil {
			b, err := json.Marshal(entry.After)
			if err == nil {
				e.After = b
			}
		}
		if err := r.repo.Create(ctx, e); err != nil {
			r.logger.Error().Err(err).
				Str("action", entry.Action).
				Str("entity_type", entry.EntityType).
				Msg("failed to record audit event")
		}
	}()
}
