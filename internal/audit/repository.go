package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineWindowSQL = `
SELECT al.occurred_at, al.actor_id, COALESCE(u.email, ''), al.action, al.entity, al.entity_id, al.meta
FROM audit_logs al
LEFT JOIN users u ON u.id = al.actor_id
WHERE ($1::timestamptz IS NULL OR al.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR al.occurred_at <= $2)
  AND ($3::text IS NULL OR al.entity = $3)
  AND ($4::text IS NULL OR al.entity_id = $4)
  AND ($5::text IS NULL OR al.action = $5)
  AND ($6::bigint IS NULL OR al.actor_id = $6)
ORDER BY al.occurred_at DESC, al.id DESC
OFFSET $7 LIMIT $8`

// TimelineWindow returns rows matching q, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, q WindowQuery) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineWindowSQL,
		optionalTimestamp(q.From), optionalTimestamp(q.To),
		optionalText(q.Entity), optionalText(q.EntityID), optionalText(q.Action),
		pgtype.Int8{Int64: q.ActorID, Valid: q.ActorID > 0},
		q.Offset, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	return pgx.CollectRows(rows, scanTimelineRow)
}

func scanTimelineRow(row pgx.CollectableRow) (TimelineRow, error) {
	var (
		out   TimelineRow
		actor pgtype.Int8
		meta  []byte
	)
	if err := row.Scan(&out.At, &actor, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
		return TimelineRow{}, err
	}
	if actor.Valid {
		id := actor.Int64
		out.ActorID = &id
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &out.Meta); err != nil {
			return TimelineRow{}, fmt.Errorf("audit: decode meta: %w", err)
		}
	}
	return out, nil
}

func optionalTimestamp(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func optionalText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

var _ Repository = (*PGRepository)(nil)
