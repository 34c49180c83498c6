package auditevent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthnet/healthnet/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, actor_user_id, action, entity_type, entity_id, before, after, ip_address, user_agent, created_at`

func (r *repoPG) scan(row pgx.Row) (*AuditEvent, error) {
	var e AuditEvent
	err := row.Scan(&e.ID, &e.ActorUserID, &e.Action, &e.EntityType, &e.EntityID,
		&e.Before, &e.After, &e.IPAddress, &e.UserAgent, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *AuditEvent) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_event (id, actor_user_id, action, entity_type, entity_id, before, after, ip_address, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.ActorUserID, e.Action, e.EntityType, e.EntityID, e.Before, e.After, e.IPAddress, e.UserAgent)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AuditEvent, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM audit_event WHERE id = $1`, id))
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*AuditEvent, int, error) {
	query := `SELECT ` + cols + ` FROM audit_event WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM audit_event WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["actor_user_id"]; ok {
		query += fmt.Sprintf(` AND actor_user_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND actor_user_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["action"]; ok {
		query += fmt.Sprintf(` AND action = $%d`, idx)
		countQuery += fmt.Sprintf(` AND action = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["entity_type"]; ok {
		query += fmt.Sprintf(` AND entity_type = $%d`, idx)
		countQuery += fmt.Sprintf(` AND entity_type = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["entity_id"]; ok {
		query += fmt.Sprintf(` AND entity_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND entity_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AuditEvent
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}
