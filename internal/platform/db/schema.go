package db

import (
	"context"
	"database/sql"
	"fmt"
)

// 出欠コア + 名簿(参照のみ)のテーブル。
// 名簿系(classes / students / teacher_class_assignments)は別サービスが書き込む前提。
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		class_id        VARCHAR(64)  NOT NULL PRIMARY KEY,
		name            VARCHAR(128) NOT NULL,
		section         VARCHAR(32)  NULL,
		lifecycle_state VARCHAR(16)  NOT NULL DEFAULT 'ACTIVE'
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS students (
		student_id      VARCHAR(64)  NOT NULL PRIMARY KEY,
		class_id        VARCHAR(64)  NOT NULL,
		admission_no    VARCHAR(64)  NOT NULL,
		first_name      VARCHAR(128) NOT NULL,
		last_name       VARCHAR(128) NOT NULL,
		lifecycle_state VARCHAR(16)  NOT NULL DEFAULT 'ACTIVE',
		KEY idx_students_class (class_id, lifecycle_state)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS teacher_class_assignments (
		teacher_id VARCHAR(64) NOT NULL,
		class_id   VARCHAR(64) NOT NULL,
		is_primary TINYINT(1)  NOT NULL DEFAULT 0,
		PRIMARY KEY (teacher_id, class_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS attendance_events (
		event_id          CHAR(26)     NOT NULL PRIMARY KEY,
		idempotency_key   VARCHAR(255) NOT NULL,
		class_id          VARCHAR(64)  NOT NULL,
		session_type      VARCHAR(16)  NOT NULL,
		attendance_date   DATE         NOT NULL,
		actor_id          VARCHAR(64)  NOT NULL,
		event_kind        VARCHAR(16)  NOT NULL,
		payload           JSON         NOT NULL,
		payload_hash      CHAR(64)     NOT NULL,
		client_created_at DATETIME(6)  NOT NULL,
		created_at        DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_attendance_events_key (idempotency_key),
		KEY idx_attendance_events_session (class_id, session_type, attendance_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS attendance_snapshots (
		class_id           VARCHAR(64)  NOT NULL,
		session_type       VARCHAR(16)  NOT NULL,
		attendance_date    DATE         NOT NULL,
		student_id         VARCHAR(64)  NOT NULL,
		status             VARCHAR(16)  NOT NULL,
		early_leave_time   CHAR(5)      NULL,
		early_leave_reason VARCHAR(255) NULL,
		notes              TEXT         NULL,
		submitted_by       VARCHAR(64)  NOT NULL,
		submitted_at       DATETIME(6)  NOT NULL,
		last_edited_by     VARCHAR(64)  NULL,
		last_edited_at     DATETIME(6)  NULL,
		is_locked          TINYINT(1)   NOT NULL DEFAULT 0,
		locked_by          VARCHAR(64)  NULL,
		locked_at          DATETIME(6)  NULL,
		PRIMARY KEY (class_id, session_type, attendance_date, student_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS attendance_session_summaries (
		class_id        VARCHAR(64) NOT NULL,
		session_type    VARCHAR(16) NOT NULL,
		attendance_date DATE        NOT NULL,
		total_students  INT         NOT NULL DEFAULT 0,
		present_count   INT         NOT NULL DEFAULT 0,
		absent_count    INT         NOT NULL DEFAULT 0,
		late_count      INT         NOT NULL DEFAULT 0,
		excused_count   INT         NOT NULL DEFAULT 0,
		sick_count      INT         NOT NULL DEFAULT 0,
		status          VARCHAR(16) NOT NULL DEFAULT 'NOT_STARTED',
		submitted_by    VARCHAR(64) NULL,
		submitted_at    DATETIME(6) NULL,
		is_locked       TINYINT(1)  NOT NULL DEFAULT 0,
		locked_by       VARCHAR(64) NULL,
		locked_at       DATETIME(6) NULL,
		PRIMARY KEY (class_id, session_type, attendance_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		audit_id        CHAR(26)     NOT NULL PRIMARY KEY,
		entity_type     VARCHAR(32)  NOT NULL,
		entity_id       VARCHAR(255) NOT NULL,
		action          VARCHAR(16)  NOT NULL,
		actor_id        VARCHAR(64)  NOT NULL,
		class_id        VARCHAR(64)  NOT NULL,
		session_type    VARCHAR(16)  NOT NULL,
		attendance_date DATE         NOT NULL,
		event_id        CHAR(26)     NULL,
		before_data     JSON         NULL,
		after_data      JSON         NULL,
		reason          VARCHAR(512) NULL,
		created_at      DATETIME(6)  NOT NULL,
		KEY idx_audit_logs_session (class_id, session_type, attendance_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		class_id        TEXT NOT NULL PRIMARY KEY,
		name            TEXT NOT NULL,
		section         TEXT NULL,
		lifecycle_state TEXT NOT NULL DEFAULT 'ACTIVE'
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		student_id      TEXT NOT NULL PRIMARY KEY,
		class_id        TEXT NOT NULL,
		admission_no    TEXT NOT NULL,
		first_name      TEXT NOT NULL,
		last_name       TEXT NOT NULL,
		lifecycle_state TEXT NOT NULL DEFAULT 'ACTIVE'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_students_class ON students (class_id, lifecycle_state)`,
	`CREATE TABLE IF NOT EXISTS teacher_class_assignments (
		teacher_id TEXT    NOT NULL,
		class_id   TEXT    NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT 0,
		PRIMARY KEY (teacher_id, class_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_events (
		event_id          TEXT     NOT NULL PRIMARY KEY,
		idempotency_key   TEXT     NOT NULL UNIQUE,
		class_id          TEXT     NOT NULL,
		session_type      TEXT     NOT NULL,
		attendance_date   TEXT     NOT NULL,
		actor_id          TEXT     NOT NULL,
		event_kind        TEXT     NOT NULL,
		payload           TEXT     NOT NULL,
		payload_hash      TEXT     NOT NULL,
		client_created_at DATETIME NOT NULL,
		created_at        DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_snapshots (
		class_id           TEXT     NOT NULL,
		session_type       TEXT     NOT NULL,
		attendance_date    TEXT     NOT NULL,
		student_id         TEXT     NOT NULL,
		status             TEXT     NOT NULL,
		early_leave_time   TEXT     NULL,
		early_leave_reason TEXT     NULL,
		notes              TEXT     NULL,
		submitted_by       TEXT     NOT NULL,
		submitted_at       DATETIME NOT NULL,
		last_edited_by     TEXT     NULL,
		last_edited_at     DATETIME NULL,
		is_locked          BOOLEAN  NOT NULL DEFAULT 0,
		locked_by          TEXT     NULL,
		locked_at          DATETIME NULL,
		PRIMARY KEY (class_id, session_type, attendance_date, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_session_summaries (
		class_id        TEXT     NOT NULL,
		session_type    TEXT     NOT NULL,
		attendance_date TEXT     NOT NULL,
		total_students  INTEGER  NOT NULL DEFAULT 0,
		present_count   INTEGER  NOT NULL DEFAULT 0,
		absent_count    INTEGER  NOT NULL DEFAULT 0,
		late_count      INTEGER  NOT NULL DEFAULT 0,
		excused_count   INTEGER  NOT NULL DEFAULT 0,
		sick_count      INTEGER  NOT NULL DEFAULT 0,
		status          TEXT     NOT NULL DEFAULT 'NOT_STARTED',
		submitted_by    TEXT     NULL,
		submitted_at    DATETIME NULL,
		is_locked       BOOLEAN  NOT NULL DEFAULT 0,
		locked_by       TEXT     NULL,
		locked_at       DATETIME NULL,
		PRIMARY KEY (class_id, session_type, attendance_date)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		audit_id        TEXT     NOT NULL PRIMARY KEY,
		entity_type     TEXT     NOT NULL,
		entity_id       TEXT     NOT NULL,
		action          TEXT     NOT NULL,
		actor_id        TEXT     NOT NULL,
		class_id        TEXT     NOT NULL,
		session_type    TEXT     NOT NULL,
		attendance_date TEXT     NOT NULL,
		event_id        TEXT     NULL,
		before_data     TEXT     NULL,
		after_data      TEXT     NULL,
		reason          TEXT     NULL,
		created_at      DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_session ON audit_logs (class_id, session_type, attendance_date)`,
}

// Migrate は起動時に足りないテーブルだけ作る（既存テーブルは触らない）
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := mysqlSchema
	if d.Name() == "sqlite3" {
		stmts = sqliteSchema
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
