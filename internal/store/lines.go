package store

import (
	"context"
	"fmt"
)

// ListLines returns all lines ordered by number.
func (s *Store) ListLines(ctx context.Context) ([]Line, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT number, name, color, updated_at FROM lines ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lines []Line
	for rows.Next() {
		var (
			line      Line
			updatedAt string
		)
		if err := rows.Scan(&line.Number, &line.Name, &line.Color, &updatedAt); err != nil {
			return nil, err
		}
		line.UpdatedAt = parseTimestamp(updatedAt)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpsertLines inserts or fully replaces lines in one transaction. Lines have
// no independently sourced fields, so every column is overwritten.
func (s *Store) UpsertLines(ctx context.Context, lines []Line) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lines (number, name, color, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(number) DO UPDATE SET
				name = excluded.name,
				color = excluded.color,
				updated_at = excluded.updated_at`,
			line.Number, line.Name, line.Color, now); err != nil {
			return fmt.Errorf("upsert line %s: %w", line.Number, err)
		}
	}
	return tx.Commit()
}
