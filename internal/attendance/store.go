package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/db"
)

// Store は SQL だけを持つ。Tx の境界は Service 側で決める
type Store struct{ d db.Dialect }

func NewStore(d db.Dialect) *Store { return &Store{d: d} }

const keyWhere = ` WHERE class_id = ? AND session_type = ? AND attendance_date = ?`

func keyArgs(k SessionKey) []any { return []any{k.ClassID, string(k.Session), k.Date} }

// ===== 冪等性台帳 =====

// FindEvent: 無ければ (nil, nil)
func (s *Store) FindEvent(ctx context.Context, q db.DBTX, idemKey string) (*Event, error) {
	var (
		ev   Event
		sess string
		kind string
	)
	err := q.QueryRowContext(ctx, `
	SELECT event_id, idempotency_key, class_id, session_type, actor_id, event_kind, payload_hash, client_created_at, created_at
	FROM attendance_events
	WHERE idempotency_key = ?`, idemKey,
	).Scan(&ev.EventID, &ev.IdempotencyKey, &ev.Key.ClassID, &sess, &ev.ActorID, &kind, &ev.PayloadHash, &ev.ClientCreatedAt, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	ev.Key.Session = SessionType(sess)
	ev.Kind = EventKind(kind)
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.ClientCreatedAt = ev.ClientCreatedAt.UTC()
	return &ev, nil
}

// InsertEvent: UNIQUE(idempotency_key) 違反はそのまま返す（呼び出し側で replay に変換）
func (s *Store) InsertEvent(ctx context.Context, q db.DBTX, ev Event) error {
	_, err := q.ExecContext(ctx, `
	INSERT INTO attendance_events
	(event_id, idempotency_key, class_id, session_type, attendance_date, actor_id, event_kind, payload, payload_hash, client_created_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.IdempotencyKey, ev.Key.ClassID, string(ev.Key.Session), ev.Key.Date,
		ev.ActorID, string(ev.Kind), string(ev.Payload), ev.PayloadHash,
		ev.ClientCreatedAt.UTC(), ev.CreatedAt.UTC(),
	)
	return err
}

// ===== セッション集計 =====

const summaryCols = `total_students, present_count, absent_count, late_count, excused_count, sick_count,
	status, submitted_by, submitted_at, is_locked, locked_by, locked_at`

func scanSummary(row *sql.Row, k SessionKey) (Summary, error) {
	var r summaryRow
	err := row.Scan(&r.Total, &r.Present, &r.Absent, &r.Late, &r.Excused, &r.Sick,
		&r.Status, &r.SubmittedBy, &r.SubmittedAt, &r.IsLocked, &r.LockedBy, &r.LockedAt)
	if err != nil {
		return Summary{}, err
	}
	return r.toModel(k), nil
}

// GetSummary: 無ければ (nil, nil)
func (s *Store) GetSummary(ctx context.Context, q db.DBTX, k SessionKey) (*Summary, error) {
	sum, err := scanSummary(q.QueryRowContext(ctx,
		`SELECT `+summaryCols+` FROM attendance_session_summaries`+keyWhere, keyArgs(k)...), k)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &sum, nil
}

// LockSummary は集計行を行ロックして返す。無ければ NOT_STARTED で作ってからロックする。
// 同じ (class, session, date) への書き込みはここで直列化される。
func (s *Store) LockSummary(ctx context.Context, tx db.DBTX, k SessionKey) (Summary, error) {
	sel := `SELECT ` + summaryCols + ` FROM attendance_session_summaries` + keyWhere + s.d.ForUpdate()

	sum, err := scanSummary(tx.QueryRowContext(ctx, sel, keyArgs(k)...), k)
	if err == nil {
		return sum, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Summary{}, fmt.Errorf("lock summary: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.d.InsertIgnore()+
		` attendance_session_summaries (class_id, session_type, attendance_date, status) VALUES (?, ?, ?, ?)`,
		k.ClassID, string(k.Session), k.Date, string(SummaryNotStarted)); err != nil {
		return Summary{}, fmt.Errorf("create summary: %w", err)
	}
	sum, err = scanSummary(tx.QueryRowContext(ctx, sel, keyArgs(k)...), k)
	if err != nil {
		return Summary{}, fmt.Errorf("lock summary: %w", err)
	}
	return sum, nil
}

// LockExistingSummary は作成しない版（lock/unlock 用）。無ければ (nil, nil)
func (s *Store) LockExistingSummary(ctx context.Context, tx db.DBTX, k SessionKey) (*Summary, error) {
	sum, err := scanSummary(tx.QueryRowContext(ctx,
		`SELECT `+summaryCols+` FROM attendance_session_summaries`+keyWhere+s.d.ForUpdate(), keyArgs(k)...), k)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock summary: %w", err)
	}
	return &sum, nil
}

func (s *Store) SaveSummary(ctx context.Context, tx db.DBTX, sum Summary) error {
	args := []any{
		sum.Total, sum.Present, sum.Absent, sum.Late, sum.Excused, sum.Sick,
		string(sum.Status), nullStr(sum.SubmittedBy), nullTime(sum.SubmittedAt),
		sum.IsLocked, nullStr(sum.LockedBy), nullTime(sum.LockedAt),
	}
	args = append(args, keyArgs(sum.Key)...)
	_, err := tx.ExecContext(ctx, `
	UPDATE attendance_session_summaries SET
	total_students = ?, present_count = ?, absent_count = ?, late_count = ?, excused_count = ?, sick_count = ?,
	status = ?, submitted_by = ?, submitted_at = ?, is_locked = ?, locked_by = ?, locked_at = ?`+keyWhere, args...)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// ===== スナップショット =====

const snapshotSelect = `
	SELECT s.student_id, s.status, s.early_leave_time, s.early_leave_reason, s.notes,
	s.submitted_by, s.submitted_at, s.last_edited_by, s.last_edited_at,
	s.is_locked, s.locked_by, s.locked_at,
	st.admission_no, st.first_name, st.last_name
	FROM attendance_snapshots s
	LEFT JOIN students st ON st.student_id = s.student_id
	WHERE s.class_id = ? AND s.session_type = ? AND s.attendance_date = ?
	ORDER BY st.first_name ASC, s.student_id ASC`

func (s *Store) ListSnapshots(ctx context.Context, q db.DBTX, k SessionKey) ([]Snapshot, error) {
	rows, err := q.QueryContext(ctx, snapshotSelect, keyArgs(k)...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.StudentID, &r.Status, &r.EarlyLeaveTime, &r.EarlyLeaveReason, &r.Notes,
			&r.SubmittedBy, &r.SubmittedAt, &r.LastEditedBy, &r.LastEditedAt,
			&r.IsLocked, &r.LockedBy, &r.LockedAt,
			&r.AdmissionNo, &r.FirstName, &r.LastName); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, r.toModel(k))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}

var (
	snapshotConflict = []string{"class_id", "session_type", "attendance_date", "student_id"}
	snapshotUpdate   = []string{
		"status", "early_leave_time", "early_leave_reason", "notes",
		"submitted_by", "submitted_at", "last_edited_by", "last_edited_at",
		"is_locked", "locked_by", "locked_at",
	}
)

// UpsertSnapshots: 1イベントぶんを1文でまとめて upsert する
func (s *Store) UpsertSnapshots(ctx context.Context, tx db.DBTX, snaps []Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	cols := append(append([]string{}, snapshotConflict...), snapshotUpdate...)
	args := make([]any, 0, len(snaps)*len(cols))
	for _, sn := range snaps {
		args = append(args,
			sn.Key.ClassID, string(sn.Key.Session), sn.Key.Date, sn.StudentID,
			string(sn.Status), nullStr(sn.EarlyLeaveTime), nullStr(sn.EarlyLeaveReason), nullStr(sn.Notes),
			sn.SubmittedBy, sn.SubmittedAt.UTC(), nullStr(sn.LastEditedBy), nullTime(sn.LastEditedAt),
			sn.IsLocked, nullStr(sn.LockedBy), nullTime(sn.LockedAt),
		)
	}
	q := `INSERT INTO attendance_snapshots (` + joinCols(cols) + `) VALUES ` +
		db.Placeholders(len(snaps), len(cols)) + s.d.Upsert(snapshotConflict, snapshotUpdate)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert snapshots: %w", err)
	}
	return nil
}

// SetSnapshotsLocked: lock/unlock 時にセッション内の全行を更新
func (s *Store) SetSnapshotsLocked(ctx context.Context, tx db.DBTX, k SessionKey, locked bool, by *string, at *time.Time) error {
	args := append([]any{locked, nullStr(by), nullTime(at)}, keyArgs(k)...)
	if _, err := tx.ExecContext(ctx,
		`UPDATE attendance_snapshots SET is_locked = ?, locked_by = ?, locked_at = ?`+keyWhere, args...); err != nil {
		return fmt.Errorf("set snapshots locked: %w", err)
	}
	return nil
}

// ===== 監査ログ =====

var auditCols = []string{
	"audit_id", "entity_type", "entity_id", "action", "actor_id",
	"class_id", "session_type", "attendance_date", "event_id",
	"before_data", "after_data", "reason", "created_at",
}

func (s *Store) InsertAudit(ctx context.Context, tx db.DBTX, entries []AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	args := make([]any, 0, len(entries)*len(auditCols))
	for _, e := range entries {
		args = append(args,
			e.AuditID, e.EntityType, e.EntityID, e.Action, e.ActorID,
			e.Key.ClassID, string(e.Key.Session), e.Key.Date, nullStr(e.EventID),
			jsonOrNil(e.Before), jsonOrNil(e.After), nullStr(e.Reason), e.CreatedAt.UTC(),
		)
	}
	q := `INSERT INTO audit_logs (` + joinCols(auditCols) + `) VALUES ` + db.Placeholders(len(entries), len(auditCols))
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, q db.DBTX, k SessionKey) ([]AuditEntry, error) {
	rows, err := q.QueryContext(ctx, `
	SELECT audit_id, entity_type, entity_id, action, actor_id, event_id, before_data, after_data, reason, created_at
	FROM audit_logs`+keyWhere+`
	ORDER BY created_at ASC, audit_id ASC`, keyArgs(k)...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e             AuditEntry
			eventID       sql.NullString
			before, after sql.NullString
			reason        sql.NullString
		)
		if err := rows.Scan(&e.AuditID, &e.EntityType, &e.EntityID, &e.Action, &e.ActorID,
			&eventID, &before, &after, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.Key = k
		e.EventID = strPtr(eventID)
		e.Reason = strPtr(reason)
		if before.Valid {
			e.Before = []byte(before.String)
		}
		if after.Valid {
			e.After = []byte(after.String)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func jsonOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func joinCols(cols []string) string { return strings.Join(cols, ", ") }
