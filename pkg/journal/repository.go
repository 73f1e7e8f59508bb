// Package journal records scan history in a local SQLite database so
// past scans can be listed and pruned.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uscan-cli/uscan/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the scan journal
type Repository struct {
	db *sql.DB
}

// NewRepository opens the journal database, creating the schema if needed
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("journal_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("journal_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open journal database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("journal_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create journal schema")
	}

	slog.Info("journal_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Record inserts one scan row
func (r *Repository) Record(scan *Scan) error {
	slog.Info("journal_record", "device", scan.Device, "status", scan.Status, "pages", scan.Pages)

	query := `
		INSERT INTO scans (device, source, color_mode, resolution, duplex, format, pages, output_path, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		scan.Device, scan.Source, scan.ColorMode, scan.Resolution, scan.Duplex,
		scan.Format, scan.Pages, scan.OutputPath, scan.Status, scan.ErrorMessage)
	if err != nil {
		slog.Error("journal_insert_failed", "device", scan.Device, "error", err)
		return errors.Wrap(err, "failed to insert scan record")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	scan.ID = id

	return nil
}

// List retrieves all recorded scans, newest first
func (r *Repository) List() ([]*Scan, error) {
	query := `
		SELECT id, device, source, color_mode, resolution, duplex, format,
		       pages, output_path, status, error_message, created_at
		FROM scans ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("journal_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list scans")
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		var s Scan
		var outputPath, errorMessage sql.NullString

		err := rows.Scan(
			&s.ID, &s.Device, &s.Source, &s.ColorMode, &s.Resolution, &s.Duplex,
			&s.Format, &s.Pages, &outputPath, &s.Status, &errorMessage, &s.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		s.OutputPath = outputPath.String
		s.ErrorMessage = errorMessage.String
		scans = append(scans, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("journal_list_complete", "scan_count", len(scans))
	return scans, nil
}

// PruneFailed deletes failed and canceled records, returning the count
func (r *Repository) PruneFailed() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM scans WHERE status IN (?, ?)`, StatusFailed, StatusCanceled)
	if err != nil {
		slog.Error("journal_prune_failed", "error", err)
		return 0, errors.Wrap(err, "failed to prune failed scans")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	slog.Info("journal_pruned", "removed", n, "filter", "failed")
	return n, nil
}

// PruneOlderThan deletes records older than the given number of days
func (r *Repository) PruneOlderThan(days int) (int64, error) {
	query := `DELETE FROM scans WHERE created_at < datetime('now', ?)`
	result, err := r.db.Exec(query, fmt.Sprintf("-%d days", days))
	if err != nil {
		slog.Error("journal_prune_failed", "error", err)
		return 0, errors.Wrap(err, "failed to prune old scans")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	slog.Info("journal_pruned", "removed", n, "older_than_days", days)
	return n, nil
}
