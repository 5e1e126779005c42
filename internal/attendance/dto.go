package attendance

import "time"

// 早退
type EarlyLeaveInput struct {
	Time   string `json:"time" binding:"required,clock_time" example:"11:30"`
	Reason string `json:"reason" binding:"required" example:"Medical appointment"`
}

type RecordInput struct {
	StudentID  string           `json:"studentId" binding:"required"`
	Status     Status           `json:"status" binding:"required,attendance_status" example:"PRESENT"`
	EarlyLeave *EarlyLeaveInput `json:"earlyLeave,omitempty" binding:"omitempty"`
	Notes      *string          `json:"notes,omitempty"`
}

// POST /attendance/sync
type SubmitRequest struct {
	IdempotencyKey  string        `json:"idempotencyKey" binding:"required,max=255" example:"teacher-1:class-1:2024-01-15:MORNING:SUBMIT:01HM2Z5Q0000000000000000"`
	ClassID         string        `json:"classId" binding:"required,max=64"`
	Date            string        `json:"date" binding:"required,iso_date" example:"2024-01-15"`
	Session         SessionType   `json:"session" binding:"required,session_type" example:"MORNING"`
	Records         []RecordInput `json:"records" binding:"required,min=1,dive"`
	ClientCreatedAt string        `json:"clientCreatedAt" binding:"required,datetime=2006-01-02T15:04:05Z07:00" example:"2024-01-15T08:30:00Z"`
}

// POST /attendance/edit
type EditRequest struct {
	IdempotencyKey  string        `json:"idempotencyKey" binding:"required,max=255"`
	ClassID         string        `json:"classId" binding:"required,max=64"`
	Date            string        `json:"date" binding:"required,iso_date"`
	Session         SessionType   `json:"session" binding:"required,session_type"`
	EditReason      string        `json:"editReason" binding:"required,max=512" example:"Parent confirmed late arrival"`
	Records         []RecordInput `json:"records" binding:"required,min=1,dive"`
	ClientCreatedAt string        `json:"clientCreatedAt" binding:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// POST /attendance/lock, /attendance/unlock
type LockRequest struct {
	ClassID string      `json:"classId" binding:"required,max=64"`
	Date    string      `json:"date" binding:"required,iso_date"`
	Session SessionType `json:"session" binding:"required,session_type"`
	Reason  string      `json:"reason" binding:"required,max=512" example:"End of day lock"`
}

type SubmitResponse struct {
	Success          bool      `json:"success"`
	EventID          string    `json:"eventId"`
	SyncedAt         time.Time `json:"syncedAt"`
	AlreadyProcessed bool      `json:"alreadyProcessed"`
	PayloadMismatch  bool      `json:"payloadMismatch,omitempty"`
}

type EditResponse struct {
	Success          bool      `json:"success"`
	EventID          string    `json:"eventId"`
	EditedAt         time.Time `json:"editedAt"`
	AlreadyProcessed bool      `json:"alreadyProcessed"`
	PayloadMismatch  bool      `json:"payloadMismatch,omitempty"`
}

type LockResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type EarlyLeaveResponse struct {
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

type StudentRef struct {
	ID          string  `json:"id"`
	AdmissionNo *string `json:"admissionNo,omitempty"`
	Name        string  `json:"name,omitempty"`
}

type RecordResponse struct {
	Student      StudentRef          `json:"student"`
	Status       Status              `json:"status"`
	EarlyLeave   *EarlyLeaveResponse `json:"earlyLeave,omitempty"`
	Notes        *string             `json:"notes,omitempty"`
	SubmittedBy  string              `json:"submittedBy"`
	SubmittedAt  time.Time           `json:"submittedAt"`
	LastEditedBy *string             `json:"lastEditedBy,omitempty"`
	LastEditedAt *time.Time          `json:"lastEditedAt,omitempty"`
	IsLocked     bool                `json:"isLocked"`
}

// GET /attendance/:classId/:date/:session
type StateResponse struct {
	ClassID          string           `json:"classId"`
	Date             string           `json:"date"`
	Session          SessionType      `json:"session"`
	Status           SummaryStatus    `json:"status"`
	IsLocked         bool             `json:"isLocked"`
	Counts           Counts           `json:"counts"`
	SubmittedBy      *string          `json:"submittedBy,omitempty"`
	SubmittedAt      *time.Time       `json:"submittedAt,omitempty"`
	LockedBy         *string          `json:"lockedBy,omitempty"`
	LockedAt         *time.Time       `json:"lockedAt,omitempty"`
	Records          []RecordResponse `json:"records"`
	CanEdit          bool             `json:"canEdit"`
	EditWindowEndsAt *time.Time       `json:"editWindowEndsAt,omitempty"`
}

// GET /dashboard
type DashboardSession struct {
	Session     SessionType   `json:"session"`
	Status      SummaryStatus `json:"status"`
	IsLocked    bool          `json:"isLocked"`
	Counts      Counts        `json:"counts"`
	SubmittedAt *time.Time    `json:"submittedAt,omitempty"`
	CanEdit     bool          `json:"canEdit"`
}

type DashboardClass struct {
	ClassID  string             `json:"classId"`
	Name     string             `json:"name"`
	Section  *string            `json:"section,omitempty"`
	Sessions []DashboardSession `json:"sessions"`
}

type DashboardResponse struct {
	Date    string           `json:"date"`
	Classes []DashboardClass `json:"classes"`
}

type AuditResponse struct {
	AuditID    string    `json:"auditId"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actorId"`
	EventID    *string   `json:"eventId,omitempty"`
	Before     any       `json:"before,omitempty" swaggertype:"object"`
	After      any       `json:"after,omitempty" swaggertype:"object"`
	Reason     *string   `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type AuditListResponse struct {
	Items []AuditResponse `json:"items"`
}
