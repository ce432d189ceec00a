package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AssignmentRow is one object's zone assignment at snapshot time.
type AssignmentRow struct {
	GridID   uint32
	ObjectID uint64
	Zone     int32
	X, Y, Z  float64
}

// AssignmentRepo snapshots and restores per-grid zone assignments.
type AssignmentRepo struct {
	db *DB
}

func NewAssignmentRepo(db *DB) *AssignmentRepo {
	return &AssignmentRepo{db: db}
}

// ReplaceGrid atomically swaps the stored snapshot of gridID for rows.
func (r *AssignmentRepo) ReplaceGrid(ctx context.Context, gridID uint32, rows []AssignmentRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM grid_objects WHERE grid_id = $1`, int64(gridID)); err != nil {
		return fmt.Errorf("snapshot clear grid %d: %w", gridID, err)
	}
	if len(rows) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"grid_objects"},
			[]string{"grid_id", "object_id", "zone", "pos_x", "pos_y", "pos_z"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				a := rows[i]
				return []any{int64(a.GridID), int64(a.ObjectID), a.Zone, a.X, a.Y, a.Z}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("snapshot copy grid %d: %w", gridID, err)
		}
	}
	return tx.Commit(ctx)
}

// LoadGrid returns the stored snapshot of gridID, ordered by object id.
func (r *AssignmentRepo) LoadGrid(ctx context.Context, gridID uint32) ([]AssignmentRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT object_id, zone, pos_x, pos_y, pos_z
		 FROM grid_objects WHERE grid_id = $1 ORDER BY object_id`, int64(gridID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssignmentRow
	for rows.Next() {
		a := AssignmentRow{GridID: gridID}
		var objectID int64
		if err := rows.Scan(&objectID, &a.Zone, &a.X, &a.Y, &a.Z); err != nil {
			return nil, err
		}
		a.ObjectID = uint64(objectID)
		out = append(out, a)
	}
	return out, rows.Err()
}
