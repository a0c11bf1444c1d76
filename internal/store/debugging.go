package store

import (
	"context"
	"fmt"
	"log/slog"

	"sevibus.transitlab.org/internal/logging"
)

// TableCounts returns the row count of every user table. Used by the debug
// endpoint and by operators checking sync results.
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rows,
		s.logger.With(slog.String("component", "debugging")), "database_rows")

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		// Table names come from sqlite_master, not user input.
		if err := s.DB.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n); err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}
