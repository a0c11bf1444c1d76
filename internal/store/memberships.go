package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"sevibus.transitlab.org/internal/logging"
	"sevibus.transitlab.org/internal/models"
)

// ReplaceMemberships destructively replaces the entire stop-line membership
// set in one transaction: all existing rows are deleted, then the new set is
// inserted. An empty input is refused (with a warning) so an upstream bug
// that returns nothing cannot silently wipe the table.
func (s *Store) ReplaceMemberships(ctx context.Context, memberships []Membership) error {
	if len(memberships) == 0 {
		s.logger.Warn("membership replace called with empty set, keeping existing rows")
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stop_lines`); err != nil {
		return fmt.Errorf("clear memberships: %w", err)
	}

	for _, m := range memberships {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO stop_lines (stop_code, line_number, direction, ordinal)
			VALUES (?, ?, ?, ?)`,
			m.StopCode, m.LineNumber, int(m.Direction), m.Ordinal); err != nil {
			logging.LogError(s.logger, "membership insert failed, rolling back", err,
				slog.String("stop", m.StopCode), slog.String("line", m.LineNumber))
			return fmt.Errorf("insert membership %s/%s: %w", m.StopCode, m.LineNumber, err)
		}
	}
	return tx.Commit()
}

// CountMemberships returns the number of membership rows.
func (s *Store) CountMemberships(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM stop_lines`).Scan(&n)
	return n, err
}

// LinesForStop returns the distinct line numbers serving a stop, ordered.
func (s *Store) LinesForStop(ctx context.Context, stopCode string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT line_number FROM stop_lines
		WHERE stop_code = ? ORDER BY line_number`, stopCode)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// DirectionsForStop maps each line at a stop to the ordered set of
// directions recorded for it there. Arrival direction resolution depends on
// this: exactly one recorded direction is unambiguous, zero or two are not.
func (s *Store) DirectionsForStop(ctx context.Context, stopCode string) (map[string][]models.Direction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT line_number, direction FROM stop_lines
		WHERE stop_code = ? ORDER BY line_number, direction`, stopCode)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string][]models.Direction)
	for rows.Next() {
		var (
			line      string
			direction int
		)
		if err := rows.Scan(&line, &direction); err != nil {
			return nil, err
		}
		result[line] = append(result[line], models.Direction(direction))
	}
	return result, rows.Err()
}

// StopsForLine returns the stops of a line with direction and ordinal,
// ordered by (direction, ordinal).
func (s *Store) StopsForLine(ctx context.Context, lineNumber string) ([]LineStop, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT sl.direction, sl.ordinal, `+prefixedStopColumns("p")+`
		FROM stop_lines sl
		JOIN stops p ON p.code = sl.stop_code
		WHERE sl.line_number = ?
		ORDER BY sl.direction, sl.ordinal`, lineNumber)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []LineStop
	for rows.Next() {
		var (
			ls        LineStop
			direction int
			street    sql.NullString
			number    sql.NullString
			postal    sql.NullString
			muni      sql.NullString
			province  sql.NullString
			region    sql.NullString
			formatted sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&direction, &ls.Ordinal,
			&ls.Code, &ls.Name, &ls.Lat, &ls.Lon,
			&street, &number, &postal, &muni, &province, &region, &formatted,
			&updatedAt); err != nil {
			return nil, err
		}
		ls.Direction = models.Direction(direction)
		ls.Address.Street = street.String
		ls.Address.HouseNumber = number.String
		ls.Address.PostalCode = postal.String
		ls.Address.Municipality = muni.String
		ls.Address.Province = province.String
		ls.Address.Region = region.String
		ls.Address.Formatted = formatted.String
		ls.UpdatedAt = parseTimestamp(updatedAt)
		result = append(result, ls)
	}
	return result, rows.Err()
}

func prefixedStopColumns(alias string) string {
	return alias + `.code, ` + alias + `.name, ` + alias + `.lat, ` + alias + `.lon, ` +
		alias + `.street, ` + alias + `.house_number, ` + alias + `.postal_code, ` +
		alias + `.municipality, ` + alias + `.province, ` + alias + `.region, ` +
		alias + `.formatted_address, ` + alias + `.updated_at`
}
