package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/stationsync/internal/models"
)

// DownloadLogRepository records how each finished download was handled.
type DownloadLogRepository struct {
	db *sql.DB
}

// NewDownloadLogRepository creates a new [DownloadLogRepository] with the given database connection
func NewDownloadLogRepository(db *sql.DB) *DownloadLogRepository {
	return &DownloadLogRepository{db: db}
}

// Record inserts a history row. A zero FinishedAt is replaced with the current time.
func (r *DownloadLogRepository) Record(rec models.DownloadRecord) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	query := `
		INSERT INTO download_log (download_id, content_type, origin_url, outcome, reason, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, rec.DownloadID, rec.ContentType, rec.OriginURL, string(rec.Outcome), rec.Reason, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert download record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *DownloadLogRepository) Recent(limit int) ([]models.DownloadRecord, error) {
	query := `
		SELECT download_id, content_type, origin_url, outcome, reason, finished_at
		FROM download_log
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?
	`
	return r.query(query, limit)
}

// ByOrigin returns every record for a download URL, newest first.
func (r *DownloadLogRepository) ByOrigin(originURL string) ([]models.DownloadRecord, error) {
	query := `
		SELECT download_id, content_type, origin_url, outcome, reason, finished_at
		FROM download_log
		WHERE origin_url = ?
		ORDER BY finished_at DESC, rowid DESC
	`
	return r.query(query, originURL)
}

func (r *DownloadLogRepository) query(query string, args ...any) ([]models.DownloadRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query download log: %w", err)
	}
	defer rows.Close()

	var records []models.DownloadRecord
	for rows.Next() {
		var (
			rec     models.DownloadRecord
			outcome string
		)
		if err := rows.Scan(&rec.DownloadID, &rec.ContentType, &rec.OriginURL, &outcome, &rec.Reason, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		rec.Outcome = models.Outcome(outcome)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate download log: %w", err)
	}
	return records, nil
}
