package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

type PeerRow struct {
	Name         string
	PasswordHash string
	Banned       bool
	Online       bool
	IP           string
	CreatedAt    time.Time
	LastActive   *time.Time
}

type PeerRepo struct {
	db *DB
}

func NewPeerRepo(db *DB) *PeerRepo {
	return &PeerRepo{db: db}
}

// Load returns the peer account, or nil if none exists.
func (r *PeerRepo) Load(ctx context.Context, name string) (*PeerRow, error) {
	row := &PeerRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, password_hash, banned, online, COALESCE(ip,''), created_at, last_active
		 FROM peers WHERE name = $1`, name,
	).Scan(
		&row.Name, &row.PasswordHash, &row.Banned, &row.Online, &row.IP, &row.CreatedAt, &row.LastActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *PeerRepo) Create(ctx context.Context, name, rawPassword, ip string) (*PeerRow, error) {
	hash, err := HashPassword(rawPassword)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	row := &PeerRow{
		Name:         name,
		PasswordHash: hash,
		IP:           ip,
		CreatedAt:    now,
		LastActive:   &now,
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO peers (name, password_hash, ip, last_active)
		 VALUES ($1, $2, $3, $4)`,
		row.Name, row.PasswordHash, row.IP, row.LastActive,
	)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *PeerRepo) ValidatePassword(hash string, rawPassword string) bool {
	return CheckPassword(hash, rawPassword)
}

// SetOnline flags the peer online or offline and stamps last_active.
func (r *PeerRepo) SetOnline(ctx context.Context, name string, online bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE peers SET online = $2, last_active = now() WHERE name = $1`,
		name, online,
	)
	return err
}

// ResetOnline clears every online flag. Called at boot.
func (r *PeerRepo) ResetOnline(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE peers SET online = FALSE WHERE online`)
	return err
}

func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
