package attendance

import (
	"database/sql"
	"time"
)

const DateLayout = "2006-01-02"

type SessionType string

const (
	SessionMorning   SessionType = "MORNING"
	SessionAfternoon SessionType = "AFTERNOON"
)

func (s SessionType) Valid() bool { return s == SessionMorning || s == SessionAfternoon }

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusExcused Status = "EXCUSED"
	StatusSick    Status = "SICK"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused, StatusSick:
		return true
	}
	return false
}

type EventKind string

const (
	KindSubmit EventKind = "SUBMIT"
	KindEdit   EventKind = "EDIT"
)

type SummaryStatus string

const (
	SummaryNotStarted SummaryStatus = "NOT_STARTED"
	SummarySynced     SummaryStatus = "SYNCED"
	SummaryLocked     SummaryStatus = "LOCKED"
)

// 監査ログの対象と操作
const (
	EntityRecord  = "ATTENDANCE_RECORD"
	EntitySession = "ATTENDANCE_SESSION"

	ActionSubmit = "SUBMIT"
	ActionEdit   = "EDIT"
	ActionLock   = "LOCK"
	ActionUnlock = "UNLOCK"
)

// SessionKey は (class, session, date) の3つ組
type SessionKey struct {
	ClassID string
	Session SessionType
	Date    string // YYYY-MM-DD
}

func (k SessionKey) String() string {
	return k.ClassID + ":" + k.Date + ":" + string(k.Session)
}

// Record は1生徒ぶんの出欠
type Record struct {
	StudentID        string  `json:"studentId"`
	Status           Status  `json:"status"`
	EarlyLeaveTime   *string `json:"earlyLeaveTime,omitempty"`
	EarlyLeaveReason *string `json:"earlyLeaveReason,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}

// Snapshot は (class, session, date, student) ごとの現在値
type Snapshot struct {
	Key SessionKey
	Record

	SubmittedBy  string
	SubmittedAt  time.Time
	LastEditedBy *string
	LastEditedAt *time.Time
	IsLocked     bool
	LockedBy     *string
	LockedAt     *time.Time

	// 名簿側から LEFT JOIN で引く表示用
	AdmissionNo *string
	FirstName   *string
	LastName    *string
}

// Counts は Summarize の結果。Present は LATE を含む
type Counts struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
	Sick    int `json:"sick"`
}

type Summary struct {
	Key SessionKey
	Counts
	Status      SummaryStatus
	SubmittedBy *string
	SubmittedAt *time.Time
	IsLocked    bool
	LockedBy    *string
	LockedAt    *time.Time
}

// Event は冪等性台帳の1行。書き込み後は不変
type Event struct {
	EventID         string
	IdempotencyKey  string
	Key             SessionKey
	ActorID         string
	Kind            EventKind
	Payload         []byte
	PayloadHash     string
	ClientCreatedAt time.Time
	CreatedAt       time.Time
}

type AuditEntry struct {
	AuditID    string
	EntityType string
	EntityID   string
	Action     string
	ActorID    string
	Key        SessionKey
	EventID    *string
	Before     []byte
	After      []byte
	Reason     *string
	CreatedAt  time.Time
}

// ===== scan rows =====

type snapshotRow struct {
	StudentID        string
	Status           string
	EarlyLeaveTime   sql.NullString
	EarlyLeaveReason sql.NullString
	Notes            sql.NullString
	SubmittedBy      string
	SubmittedAt      time.Time
	LastEditedBy     sql.NullString
	LastEditedAt     sql.NullTime
	IsLocked         bool
	LockedBy         sql.NullString
	LockedAt         sql.NullTime
	AdmissionNo      sql.NullString
	FirstName        sql.NullString
	LastName         sql.NullString
}

func (r snapshotRow) toModel(k SessionKey) Snapshot {
	return Snapshot{
		Key: k,
		Record: Record{
			StudentID:        r.StudentID,
			Status:           Status(r.Status),
			EarlyLeaveTime:   strPtr(r.EarlyLeaveTime),
			EarlyLeaveReason: strPtr(r.EarlyLeaveReason),
			Notes:            strPtr(r.Notes),
		},
		SubmittedBy:  r.SubmittedBy,
		SubmittedAt:  r.SubmittedAt.UTC(),
		LastEditedBy: strPtr(r.LastEditedBy),
		LastEditedAt: timePtr(r.LastEditedAt),
		IsLocked:     r.IsLocked,
		LockedBy:     strPtr(r.LockedBy),
		LockedAt:     timePtr(r.LockedAt),
		AdmissionNo:  strPtr(r.AdmissionNo),
		FirstName:    strPtr(r.FirstName),
		LastName:     strPtr(r.LastName),
	}
}

type summaryRow struct {
	Total, Present, Absent, Late, Excused, Sick int
	Status                                      string
	SubmittedBy                                 sql.NullString
	SubmittedAt                                 sql.NullTime
	IsLocked                                    bool
	LockedBy                                    sql.NullString
	LockedAt                                    sql.NullTime
}

func (r summaryRow) toModel(k SessionKey) Summary {
	return Summary{
		Key: k,
		Counts: Counts{
			Total: r.Total, Present: r.Present, Absent: r.Absent,
			Late: r.Late, Excused: r.Excused, Sick: r.Sick,
		},
		Status:      SummaryStatus(r.Status),
		SubmittedBy: strPtr(r.SubmittedBy),
		SubmittedAt: timePtr(r.SubmittedAt),
		IsLocked:    r.IsLocked,
		LockedBy:    strPtr(r.LockedBy),
		LockedAt:    timePtr(r.LockedAt),
	}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
