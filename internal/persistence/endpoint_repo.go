package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"esplink/internal/discovery"
)

// EndpointRepo caches the last verified device endpoint so the next
// boot can probe it before sweeping the subnet.
type EndpointRepo struct {
	db *sql.DB
}

func NewEndpointRepo(db *sql.DB) *EndpointRepo {
	return &EndpointRepo{db: db}
}

func (r *EndpointRepo) SaveEndpoint(ctx context.Context, ep discovery.Endpoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO endpoints(id, ip, port, verified_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ip = excluded.ip,
			port = excluded.port,
			verified_at = excluded.verified_at
	`, ep.IP, ep.Port, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save endpoint: %w", err)
	}

	return nil
}

// LastEndpoint returns the cached endpoint, or ok=false when no device
// has ever been verified.
func (r *EndpointRepo) LastEndpoint(ctx context.Context) (discovery.Endpoint, bool, error) {
	var (
		ep         discovery.Endpoint
		verifiedMs int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT ip, port, verified_at FROM endpoints WHERE id = 1
	`).Scan(&ep.IP, &ep.Port, &verifiedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return discovery.Endpoint{}, false, nil
	}
	if err != nil {
		return discovery.Endpoint{}, false, fmt.Errorf("load endpoint: %w", err)
	}

	return ep, true, nil
}
