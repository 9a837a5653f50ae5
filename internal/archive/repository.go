package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"battmon/internal/models"
)

// Repository persists completed sessions to Postgres for reporting and
// history. The live store keeps only the working set; archived rows are the
// durable record after finalization.
type Repository struct {
	db *sql.DB
}

// NewRepository returns repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ArchiveSession upserts the completed session summary. Re-archiving the same
// session (e.g. after a partially failed finalization retry) overwrites the
// previous row.
func (r *Repository) ArchiveSession(ctx context.Context, portID string, session *models.Session) error {
	const query = `
		INSERT INTO session_archive (
			port_id, session_id, battery_type, session_type, status,
			start_time, end_time, rated_capacity_ah,
			final_voltage, final_current,
			final_discharged_capacity_ah, final_measured_capacity_ah,
			final_soh, final_soc, note, archived_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (port_id, session_id) DO UPDATE SET
			battery_type = EXCLUDED.battery_type,
			session_type = EXCLUDED.session_type,
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			rated_capacity_ah = EXCLUDED.rated_capacity_ah,
			final_voltage = EXCLUDED.final_voltage,
			final_current = EXCLUDED.final_current,
			final_discharged_capacity_ah = EXCLUDED.final_discharged_capacity_ah,
			final_measured_capacity_ah = EXCLUDED.final_measured_capacity_ah,
			final_soh = EXCLUDED.final_soh,
			final_soc = EXCLUDED.final_soc,
			note = EXCLUDED.note,
			archived_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		portID,
		session.ID,
		session.BatteryType,
		string(session.Type),
		string(session.Status),
		time.UnixMilli(session.StartTime).UTC(),
		time.UnixMilli(session.EndTime).UTC(),
		session.RatedCapacity,
		session.FinalVoltage,
		session.FinalCurrent,
		session.FinalDischargedCapacity,
		session.FinalMeasuredCapacity,
		session.FinalSOH,
		session.FinalSOC,
		session.Note,
	)
	if err != nil {
		return fmt.Errorf("archive: insert session %s/%s: %w", portID, session.ID, err)
	}
	return nil
}

// RecentSessions returns the latest archived sessions for a port.
func (r *Repository) RecentSessions(ctx context.Context, portID string, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT session_id, battery_type, session_type, status,
		       start_time, end_time, rated_capacity_ah,
		       final_voltage, final_current,
		       final_discharged_capacity_ah, final_measured_capacity_ah,
		       final_soh, final_soc, note
		FROM session_archive
		WHERE port_id = $1
		ORDER BY end_time DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, portID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query sessions for %s: %w", portID, err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var (
			s          models.Session
			sType      string
			status     string
			start, end time.Time
		)
		if err := rows.Scan(
			&s.ID,
			&s.BatteryType,
			&sType,
			&status,
			&start,
			&end,
			&s.RatedCapacity,
			&s.FinalVoltage,
			&s.FinalCurrent,
			&s.FinalDischargedCapacity,
			&s.FinalMeasuredCapacity,
			&s.FinalSOH,
			&s.FinalSOC,
			&s.Note,
		); err != nil {
			return nil, err
		}
		s.Type = models.SessionType(sType)
		s.Status = models.SessionStatus(status)
		s.StartTime = start.UnixMilli()
		s.EndTime = end.UnixMilli()
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
