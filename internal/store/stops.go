package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sevibus.transitlab.org/internal/models"
)

const stopColumns = `code, name, lat, lon, street, house_number, postal_code,
	municipality, province, region, formatted_address, updated_at`

// GetStop returns the stop with the given code, or ErrNotFound.
func (s *Store) GetStop(ctx context.Context, code string) (Stop, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+stopColumns+` FROM stops WHERE code = ?`, code)
	stop, err := scanStop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Stop{}, ErrNotFound
	}
	return stop, err
}

// ListStops returns all stops ordered by code.
func (s *Store) ListStops(ctx context.Context) ([]Stop, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+stopColumns+` FROM stops ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectStops(rows)
}

// ListStopsMissingAddress returns stops whose street has never been
// resolved. The address sync re-queries these on every run.
func (s *Store) ListStopsMissingAddress(ctx context.Context) ([]Stop, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+stopColumns+` FROM stops WHERE street IS NULL OR street = '' ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectStops(rows)
}

// UpsertStops inserts or updates stops in one transaction. A stop carrying
// an address overwrites all fields; a stop without one leaves previously
// geocoded address columns untouched.
func (s *Store) UpsertStops(ctx context.Context, stops []Stop) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	for _, stop := range stops {
		if stop.Address.HasStreet() {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO stops (code, name, lat, lon, street, house_number,
					postal_code, municipality, province, region, formatted_address, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(code) DO UPDATE SET
					name = excluded.name,
					lat = excluded.lat,
					lon = excluded.lon,
					street = excluded.street,
					house_number = excluded.house_number,
					postal_code = excluded.postal_code,
					municipality = excluded.municipality,
					province = excluded.province,
					region = excluded.region,
					formatted_address = excluded.formatted_address,
					updated_at = excluded.updated_at`,
				stop.Code, stop.Name, stop.Lat, stop.Lon,
				stop.Address.Street, stop.Address.HouseNumber, stop.Address.PostalCode,
				stop.Address.Municipality, stop.Address.Province, stop.Address.Region,
				stop.Address.Formatted, now)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO stops (code, name, lat, lon, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(code) DO UPDATE SET
					name = excluded.name,
					lat = excluded.lat,
					lon = excluded.lon,
					updated_at = excluded.updated_at`,
				stop.Code, stop.Name, stop.Lat, stop.Lon, now)
		}
		if err != nil {
			return fmt.Errorf("upsert stop %s: %w", stop.Code, err)
		}
	}
	return tx.Commit()
}

// UpdateStopAddress overwrites every address field of one stop.
func (s *Store) UpdateStopAddress(ctx context.Context, code string, addr models.Address) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE stops SET
			street = ?, house_number = ?, postal_code = ?,
			municipality = ?, province = ?, region = ?, formatted_address = ?
		WHERE code = ?`,
		addr.Street, addr.HouseNumber, addr.PostalCode,
		addr.Municipality, addr.Province, addr.Region, addr.Formatted, code)
	if err != nil {
		return fmt.Errorf("update address for %s: %w", code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStop(row rowScanner) (Stop, error) {
	var (
		stop      Stop
		street    sql.NullString
		number    sql.NullString
		postal    sql.NullString
		muni      sql.NullString
		province  sql.NullString
		region    sql.NullString
		formatted sql.NullString
		updatedAt string
	)
	err := row.Scan(&stop.Code, &stop.Name, &stop.Lat, &stop.Lon,
		&street, &number, &postal, &muni, &province, &region, &formatted, &updatedAt)
	if err != nil {
		return Stop{}, err
	}
	stop.Address.Street = street.String
	stop.Address.HouseNumber = number.String
	stop.Address.PostalCode = postal.String
	stop.Address.Municipality = muni.String
	stop.Address.Province = province.String
	stop.Address.Region = region.String
	stop.Address.Formatted = formatted.String
	stop.UpdatedAt = parseTimestamp(updatedAt)
	return stop, nil
}

func collectStops(rows *sql.Rows) ([]Stop, error) {
	var stops []Stop
	for rows.Next() {
		stop, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, rows.Err()
}
