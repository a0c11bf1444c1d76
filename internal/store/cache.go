package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"sevibus.transitlab.org/internal/logging"
	"sevibus.transitlab.org/internal/models"
)

const (
	// ArrivalTTL bounds how long live arrival estimates are served from
	// cache. Estimates churn constantly; a minute is the useful horizon.
	ArrivalTTL = time.Minute

	// AddressTTL bounds the reverse-geocode cache. Street addresses do not
	// change, so thirty days mostly just bounds table growth.
	AddressTTL = 30 * 24 * time.Hour
)

// RoundCoord rounds a coordinate to 4 decimal places (~11m), the cache key
// granularity for reverse-geocoded addresses. Nearby queries collapse onto
// one key, which is what makes the cache effective.
func RoundCoord(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// GetArrivals returns the cached arrivals snapshot for a stop, or nil when
// there is no entry, the entry expired, or the payload is corrupt. Corrupt
// rows are deleted; expired ones are merely invisible.
func (s *Store) GetArrivals(ctx context.Context, stopCode string) (*models.ArrivalsSnapshot, error) {
	var (
		payload  []byte
		cachedAt string
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT payload, cached_at FROM arrivals_cache WHERE stop_code = ?`,
		stopCode).Scan(&payload, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.expired(cachedAt, ArrivalTTL) {
		return nil, nil
	}

	var snapshot models.ArrivalsSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		logging.LogError(s.logger, "corrupt arrivals cache entry, deleting", err,
			slog.String("stop", stopCode))
		if _, delErr := s.DB.ExecContext(ctx,
			`DELETE FROM arrivals_cache WHERE stop_code = ?`, stopCode); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	return &snapshot, nil
}

// SetArrivals stores the arrivals snapshot for a stop, replacing any
// previous entry.
func (s *Store) SetArrivals(ctx context.Context, stopCode string, snapshot models.ArrivalsSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal arrivals for %s: %w", stopCode, err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO arrivals_cache (stop_code, payload, cached_at)
		VALUES (?, ?, ?)`, stopCode, payload, s.now())
	return err
}

// GetAddress returns the cached address for the rounded coordinates, or nil
// on miss/expiry/corruption. Corrupt rows are deleted.
func (s *Store) GetAddress(ctx context.Context, lat, lon float64) (*models.Address, error) {
	latR, lonR := RoundCoord(lat), RoundCoord(lon)

	var (
		payload  []byte
		cachedAt string
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT payload, cached_at FROM addresses_cache WHERE lat = ? AND lon = ?`,
		latR, lonR).Scan(&payload, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.expired(cachedAt, AddressTTL) {
		return nil, nil
	}

	var addr models.Address
	if err := json.Unmarshal(payload, &addr); err != nil {
		logging.LogError(s.logger, "corrupt address cache entry, deleting", err,
			slog.Float64("lat", latR), slog.Float64("lon", lonR))
		if _, delErr := s.DB.ExecContext(ctx,
			`DELETE FROM addresses_cache WHERE lat = ? AND lon = ?`, latR, lonR); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	return &addr, nil
}

// SetAddress stores an address under the rounded coordinates.
func (s *Store) SetAddress(ctx context.Context, lat, lon float64, addr models.Address) error {
	payload, err := json.Marshal(addr)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO addresses_cache (lat, lon, payload, cached_at)
		VALUES (?, ?, ?, ?)`, RoundCoord(lat), RoundCoord(lon), payload, s.now())
	return err
}

// expired applies the TTL check at read time. Unparseable timestamps count
// as expired so a damaged row can never be served forever.
func (s *Store) expired(cachedAt string, ttl time.Duration) bool {
	t := parseTimestamp(cachedAt)
	if t.IsZero() {
		return true
	}
	return s.clock.Now().Sub(t) >= ttl
}
