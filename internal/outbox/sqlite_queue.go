package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/attendance"
)

// outboxRow は outbox_events テーブル
type outboxRow struct {
	Key           string         `gorm:"primaryKey;column:outbox_key;type:varchar(255)"`
	ActorID       string         `gorm:"column:actor_id;type:varchar(64);not null"`
	ClassID       string         `gorm:"column:class_id;type:varchar(64);not null;index:idx_outbox_group"`
	Date          string         `gorm:"column:session_date;type:varchar(10);not null;index:idx_outbox_group"`
	Session       string         `gorm:"column:session_type;type:varchar(16);not null;index:idx_outbox_group"`
	Kind          string         `gorm:"column:kind;type:varchar(8);not null"`
	Payload       datatypes.JSON `gorm:"column:payload;type:json;not null"`
	Status        string         `gorm:"column:status;type:varchar(16);not null;index"`
	RetryCount    int            `gorm:"column:retry_count;not null;default:0"`
	Permanent     bool           `gorm:"column:permanent;not null;default:false"`
	LastError     *string        `gorm:"column:last_error;type:text"`
	ServerEventID *string        `gorm:"column:server_event_id;type:varchar(64)"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null;index"`
	LastAttemptAt *time.Time     `gorm:"column:last_attempt_at"`
	SyncedAt      *time.Time     `gorm:"column:synced_at"`
}

func (outboxRow) TableName() string { return "outbox_events" }

func rowOf(e Event) outboxRow {
	return outboxRow{
		Key:           e.Key,
		ActorID:       e.ActorID,
		ClassID:       e.ClassID,
		Date:          e.Date,
		Session:       string(e.Session),
		Kind:          string(e.Kind),
		Payload:       datatypes.JSON(e.Payload),
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		Permanent:     e.Permanent,
		LastError:     e.LastError,
		ServerEventID: e.ServerEventID,
		CreatedAt:     e.CreatedAt.UTC(),
		LastAttemptAt: utcPtr(e.LastAttemptAt),
		SyncedAt:      utcPtr(e.SyncedAt),
	}
}

func (r outboxRow) toEvent() Event {
	return Event{
		Key:           r.Key,
		ActorID:       r.ActorID,
		ClassID:       r.ClassID,
		Date:          r.Date,
		Session:       attendance.SessionType(r.Session),
		Kind:          attendance.EventKind(r.Kind),
		Payload:       []byte(r.Payload),
		Status:        Status(r.Status),
		RetryCount:    r.RetryCount,
		Permanent:     r.Permanent,
		LastError:     r.LastError,
		ServerEventID: r.ServerEventID,
		CreatedAt:     r.CreatedAt.UTC(),
		LastAttemptAt: utcPtr(r.LastAttemptAt),
		SyncedAt:      utcPtr(r.SyncedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// SQLiteQueue は gorm + SQLite の Queue
type SQLiteQueue struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLiteQueue, error) {
	gdb, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open outbox sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&outboxRow{}); err != nil {
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}
	return &SQLiteQueue{db: gdb}, nil
}

func (q *SQLiteQueue) Put(ctx context.Context, e Event) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&outboxRow{}).Where("outbox_key = ?", e.Key).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		row := rowOf(e)
		return tx.Create(&row).Error
	})
}

func (q *SQLiteQueue) Get(ctx context.Context, key string) (Event, error) {
	var r outboxRow
	err := q.db.WithContext(ctx).Where("outbox_key = ?", key).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, err
	}
	return r.toEvent(), nil
}

func (q *SQLiteQueue) List(ctx context.Context, statuses ...Status) ([]Event, error) {
	tx := q.db.WithContext(ctx).Model(&outboxRow{})
	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, s := range statuses {
			ss[i] = string(s)
		}
		tx = tx.Where("status IN ?", ss)
	}
	var rows []outboxRow
	if err := tx.Order("created_at ASC").Order("outbox_key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEvent())
	}
	sortEvents(out)
	return out, nil
}

func (q *SQLiteQueue) Update(ctx context.Context, key string, fn func(*Event) error) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r outboxRow
		err := tx.Where("outbox_key = ?", key).Take(&r).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		e := r.toEvent()
		if err := fn(&e); err != nil {
			return err
		}
		e.Key = key
		row := rowOf(e)
		return tx.Save(&row).Error
	})
}

func (q *SQLiteQueue) Delete(ctx context.Context, key string) error {
	res := q.db.WithContext(ctx).Where("outbox_key = ?", key).Delete(&outboxRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *SQLiteQueue) Close() error {
	sqlDB, err := q.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
