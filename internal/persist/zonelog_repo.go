package persist

import (
	"context"
	"fmt"
	"time"
)

// ZoneLogEntry records one delivered zone change.
type ZoneLogEntry struct {
	GridID    uint32
	ObjectID  uint64
	FromZone  int32
	ToZone    int32
	X, Y, Z   float64
	ChangedAt time.Time
}

type ZoneLogRepo struct {
	db *DB
}

func NewZoneLogRepo(db *DB) *ZoneLogRepo {
	return &ZoneLogRepo{db: db}
}

// Append writes a batch of entries in a single transaction.
func (r *ZoneLogRepo) Append(ctx context.Context, entries []ZoneLogEntry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("zone log begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO zone_changes (grid_id, object_id, from_zone, to_zone, pos_x, pos_y, pos_z, changed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			int64(e.GridID), int64(e.ObjectID), e.FromZone, e.ToZone, e.X, e.Y, e.Z, e.ChangedAt,
		); err != nil {
			return fmt.Errorf("zone log insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Prune deletes entries older than cutoff and reports how many went.
func (r *ZoneLogRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM zone_changes WHERE changed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
