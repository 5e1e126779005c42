package outbox

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/attendance"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSyncing Status = "SYNCING"
	StatusSynced  Status = "SYNCED"
	StatusFailed  Status = "FAILED"
)

var (
	ErrNotFound = errors.New("outbox: event not found")
	ErrExists   = errors.New("outbox: event already exists")
	ErrOffline  = errors.New("outbox: server unreachable")
	ErrInFlight = errors.New("outbox: event is being delivered")
	ErrInvalid  = errors.New("outbox: invalid draft")
)

// Event は端末に保存される未送信の出欠イベント
type Event struct {
	Key     string                 `json:"key"`
	ActorID string                 `json:"actorId"`
	ClassID string                 `json:"classId"`
	Date    string                 `json:"date"`
	Session attendance.SessionType `json:"session"`
	Kind    attendance.EventKind   `json:"kind"`
	Payload json.RawMessage        `json:"payload"` // SubmitRequest / EditRequest の JSON

	Status        Status     `json:"status"`
	RetryCount    int        `json:"retryCount"`
	Permanent     bool       `json:"permanent"` // 4xx。手動 retry まで再送しない
	LastError     *string    `json:"lastError,omitempty"`
	ServerEventID *string    `json:"serverEventId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	SyncedAt      *time.Time `json:"syncedAt,omitempty"`
}

// Group は配送順序を守る単位 (class, session, date)
func (e Event) Group() string {
	return e.ClassID + ":" + string(e.Session) + ":" + e.Date
}

// seq はキー末尾の ULID。同じ端末なら生成順に並ぶ
func (e Event) seq() string {
	if i := strings.LastIndexByte(e.Key, ':'); i >= 0 {
		return e.Key[i+1:]
	}
	return e.Key
}

func lessEvent(a, b Event) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq() < b.seq()
}

// Draft は画面から受け取る入力（キーと時刻は Enqueue が付ける）
type Draft struct {
	ClassID    string                   `json:"classId"`
	Date       string                   `json:"date"`
	Session    attendance.SessionType   `json:"session"`
	Kind       attendance.EventKind     `json:"kind"`
	EditReason string                   `json:"editReason,omitempty"`
	Records    []attendance.RecordInput `json:"records"`
}

// Receipt はサーバの受理結果
type Receipt struct {
	EventID          string
	At               time.Time
	AlreadyProcessed bool
}

// Report は SyncAll 1回分の結果
type Report struct {
	Attempted int      `json:"attempted"`
	Synced    int      `json:"synced"`
	Failed    int      `json:"failed"`
	Offline   int      `json:"offline"`
	Deferred  int      `json:"deferred"`
	Exhausted []string `json:"exhausted,omitempty"`
}

type StatusReport struct {
	Counts map[Status]int `json:"counts"`
	Events []Event        `json:"events"`
}
