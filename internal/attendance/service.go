package attendance

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/auth"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/db"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/logger"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/observability"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/roster"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type IDGen interface {
	New() (string, error)
}

// ulidGen: 同一ミリ秒内でも単調増加（監査ログの並び順に使う）
type ulidGen struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Roster は名簿サービス（外部）への参照
type Roster interface {
	ClassExists(ctx context.Context, classID string) (bool, error)
	IsAssigned(ctx context.Context, teacherID, classID string) (bool, error)
	ActiveStudentIDs(ctx context.Context, classID string) (map[string]struct{}, error)
	ListClasses(ctx context.Context, teacherID string) ([]roster.Class, error)
}

// ReplayCache は台帳の前段キャッシュ。外れても台帳を見るので結果は変わらない
type ReplayCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (noopCache) Set(context.Context, string, any) error         { return nil }

// ===== Service本体 =====

const txAttempts = 3

var errReplayed = errors.New("replayed")

var tracer = otel.Tracer("attendance")

type Service struct {
	conn    *sql.DB
	dialect db.Dialect
	store   *Store
	roster  Roster
	policy  Policy
	strict  bool

	clock   Clock
	id      IDGen
	cache   ReplayCache
	log     *logger.Logger
	metrics *observability.Metrics
}

type Option func(*Service)

func WithClock(c Clock) Option                    { return func(s *Service) { s.clock = c } }
func WithIDGen(g IDGen) Option                    { return func(s *Service) { s.id = g } }
func WithReplayCache(c ReplayCache) Option        { return func(s *Service) { s.cache = c } }
func WithLogger(l *logger.Logger) Option          { return func(s *Service) { s.log = l } }
func WithMetrics(m *observability.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithPolicy(p Policy) Option                  { return func(s *Service) { s.policy = p } }
func WithStrictReplay(on bool) Option             { return func(s *Service) { s.strict = on } }

func NewService(conn *sql.DB, d db.Dialect, roster Roster, opts ...Option) *Service {
	s := &Service{
		conn:    conn,
		dialect: d,
		store:   NewStore(d),
		roster:  roster,
		policy:  NewPolicy(120*time.Minute, []string{"ADMIN", "PRINCIPAL"}),
		clock:   realClock{},
		id:      newULIDGen(),
		cache:   noopCache{},
		log:     logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "attendance")
	return s
}

func (s *Service) Policy() Policy { return s.policy }

// now は DATETIME(6) に合わせてマイクロ秒で切る
func (s *Service) now() time.Time { return s.clock.Now().UTC().Truncate(time.Microsecond) }

// ===== 取り込み（SUBMIT / EDIT 共通） =====

type ingestInput struct {
	Kind            EventKind   `json:"kind"`
	IdempotencyKey  string      `json:"idempotencyKey"`
	ClassID         string      `json:"classId"`
	Date            string      `json:"date"`
	Session         SessionType `json:"session"`
	EditReason      string      `json:"editReason,omitempty"`
	Records         []Record    `json:"records"`
	ClientCreatedAt time.Time   `json:"clientCreatedAt"`

	key  SessionKey
	hash string
}

type ingestResult struct {
	EventID  string
	At       time.Time
	Replay   bool
	Mismatch bool
}

// 台帳キャッシュに載せる値
type ledgerEntry struct {
	EventID     string    `json:"eventId"`
	Kind        EventKind `json:"kind"`
	PayloadHash string    `json:"payloadHash"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newIngest(kind EventKind, idemKey, classID, date string, session SessionType, recs []RecordInput, editReason, clientAt string) (ingestInput, error) {
	key, err := parseKey(classID, date, session)
	if err != nil {
		return ingestInput{}, err
	}
	if idemKey == "" {
		return ingestInput{}, ErrInvalid("idempotencyKey is required")
	}
	if len(recs) == 0 {
		return ingestInput{}, ErrInvalid("records must not be empty")
	}
	records, err := toRecords(recs)
	if err != nil {
		return ingestInput{}, err
	}
	at, err := parseClientTime(clientAt)
	if err != nil {
		return ingestInput{}, err
	}
	in := ingestInput{
		Kind:            kind,
		IdempotencyKey:  idemKey,
		ClassID:         key.ClassID,
		Date:            key.Date,
		Session:         key.Session,
		Records:         records,
		ClientCreatedAt: at,
		key:             key,
	}
	if kind == KindEdit {
		reason := normalizeText(&editReason)
		if reason == nil {
			return ingestInput{}, ErrInvalid("editReason is required")
		}
		in.EditReason = *reason
	}
	in.hash = Fingerprint(kind, key, in.EditReason, records)
	return in, nil
}

// POST /attendance/sync
func (s *Service) Submit(ctx context.Context, actor auth.Actor, req SubmitRequest) (SubmitResponse, error) {
	ctx, span := tracer.Start(ctx, "attendance.Submit")
	defer span.End()

	if err := validateStruct(req); err != nil {
		return SubmitResponse{}, s.finish(span, KindSubmit, time.Time{}, err)
	}
	in, err := newIngest(KindSubmit, req.IdempotencyKey, req.ClassID, req.Date, req.Session, req.Records, "", req.ClientCreatedAt)
	if err != nil {
		return SubmitResponse{}, s.finish(span, KindSubmit, time.Time{}, err)
	}
	start := time.Now()
	res, err := s.ingest(ctx, span, actor, in)
	if err != nil {
		return SubmitResponse{}, s.finish(span, KindSubmit, start, err)
	}
	s.record(KindSubmit, res, start)
	return SubmitResponse{
		Success:          true,
		EventID:          res.EventID,
		SyncedAt:         res.At,
		AlreadyProcessed: res.Replay,
		PayloadMismatch:  res.Mismatch,
	}, nil
}

// POST /attendance/edit
func (s *Service) Edit(ctx context.Context, actor auth.Actor, req EditRequest) (EditResponse, error) {
	ctx, span := tracer.Start(ctx, "attendance.Edit")
	defer span.End()

	if err := validateStruct(req); err != nil {
		return EditResponse{}, s.finish(span, KindEdit, time.Time{}, err)
	}
	in, err := newIngest(KindEdit, req.IdempotencyKey, req.ClassID, req.Date, req.Session, req.Records, req.EditReason, req.ClientCreatedAt)
	if err != nil {
		return EditResponse{}, s.finish(span, KindEdit, time.Time{}, err)
	}
	start := time.Now()
	res, err := s.ingest(ctx, span, actor, in)
	if err != nil {
		return EditResponse{}, s.finish(span, KindEdit, start, err)
	}
	s.record(KindEdit, res, start)
	return EditResponse{
		Success:          true,
		EventID:          res.EventID,
		EditedAt:         res.At,
		AlreadyProcessed: res.Replay,
		PayloadMismatch:  res.Mismatch,
	}, nil
}

func (s *Service) ingest(ctx context.Context, span trace.Span, actor auth.Actor, in ingestInput) (ingestResult, error) {
	span.SetAttributes(
		attribute.String("attendance.kind", string(in.Kind)),
		attribute.String("attendance.session_key", in.key.String()),
		attribute.String("attendance.actor", actor.ID),
	)

	// 1. 台帳（ロック外）
	if res, ok, err := s.lookupReplay(ctx, in); err != nil || ok {
		return res, err
	}

	// 2. クラス・担当・名簿
	if err := s.authorize(ctx, actor, in.key.ClassID); err != nil {
		return ingestResult{}, err
	}
	if err := s.checkStudents(ctx, in.key.ClassID, in.Records); err != nil {
		return ingestResult{}, err
	}

	// 3-4. 1トランザクション
	var res ingestResult
	err := db.RunInTxRetry(ctx, s.conn, s.dialect, txAttempts, func(ctx context.Context, tx db.DBTX) error {
		r, err := s.applyTx(ctx, tx, actor, in)
		res = r
		if err == nil && r.Replay {
			// ロック待ちの間に同じキーが確定していた。何も書かずに戻す
			return errReplayed
		}
		return err
	})
	if errors.Is(err, errReplayed) {
		return res, nil
	}
	if err != nil && s.dialect.IsDuplicateKey(err) {
		// 同じキーが並行で先にコミットされた
		ev, ferr := s.store.FindEvent(ctx, s.conn, in.IdempotencyKey)
		if ferr != nil {
			return ingestResult{}, ferr
		}
		if ev != nil {
			return s.replayOf(ctx, entryOf(ev), in)
		}
	}
	if err != nil {
		return ingestResult{}, err
	}

	if !res.Replay {
		s.remember(ctx, in.IdempotencyKey, ledgerEntry{EventID: res.EventID, Kind: in.Kind, PayloadHash: in.hash, CreatedAt: res.At})
		s.log.Info("attendance event accepted",
			"kind", in.Kind, "event_id", res.EventID, "session_key", in.key.String(), "actor", actor.ID, "records", len(in.Records))
	}
	return res, nil
}

func (s *Service) applyTx(ctx context.Context, tx db.DBTX, actor auth.Actor, in ingestInput) (ingestResult, error) {
	sum, err := s.store.LockSummary(ctx, tx, in.key)
	if err != nil {
		return ingestResult{}, err
	}

	// 行ロックを取った後にもう一度台帳を見る
	ev, err := s.store.FindEvent(ctx, tx, in.IdempotencyKey)
	if err != nil {
		return ingestResult{}, err
	}
	if ev != nil {
		return s.replayOf(ctx, entryOf(ev), in)
	}

	now := s.now()
	switch in.Kind {
	case KindSubmit:
		err = s.policy.CheckSubmit(actor, sum)
	case KindEdit:
		err = s.policy.CheckEdit(actor, sum, now)
	}
	if err != nil {
		return ingestResult{}, err
	}

	existing, err := s.store.ListSnapshots(ctx, tx, in.key)
	if err != nil {
		return ingestResult{}, err
	}

	eventID, err := s.id.New()
	if err != nil {
		return ingestResult{}, fmt.Errorf("generate event id: %w", err)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return ingestResult{}, fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.store.InsertEvent(ctx, tx, Event{
		EventID:         eventID,
		IdempotencyKey:  in.IdempotencyKey,
		Key:             in.key,
		ActorID:         actor.ID,
		Kind:            in.Kind,
		Payload:         payload,
		PayloadHash:     in.hash,
		ClientCreatedAt: in.ClientCreatedAt,
		CreatedAt:       now,
	}); err != nil {
		return ingestResult{}, err
	}

	changed, audits, err := s.merge(actor, in, sum, existing, eventID, now)
	if err != nil {
		return ingestResult{}, err
	}
	if err := s.store.UpsertSnapshots(ctx, tx, changed); err != nil {
		return ingestResult{}, err
	}

	// 集計は全件から作り直す
	all, err := s.store.ListSnapshots(ctx, tx, in.key)
	if err != nil {
		return ingestResult{}, err
	}
	sum.Counts = Summarize(all)
	if in.Kind == KindSubmit && sum.SubmittedAt == nil {
		by := actor.ID
		sum.SubmittedBy = &by
		sum.SubmittedAt = &now
	}
	if sum.Status == SummaryNotStarted {
		sum.Status = SummarySynced
	}
	if err := s.store.SaveSummary(ctx, tx, sum); err != nil {
		return ingestResult{}, err
	}
	if err := s.store.InsertAudit(ctx, tx, audits); err != nil {
		return ingestResult{}, err
	}
	return ingestResult{EventID: eventID, At: now}, nil
}

// merge は変化した snapshot だけを返し、1件ごとに監査ログを作る
func (s *Service) merge(actor auth.Actor, in ingestInput, sum Summary, existing []Snapshot, eventID string, now time.Time) ([]Snapshot, []AuditEntry, error) {
	byID := make(map[string]Snapshot, len(existing))
	for _, sn := range existing {
		byID[sn.StudentID] = sn
	}

	action := ActionSubmit
	var reason *string
	if in.Kind == KindEdit {
		action = ActionEdit
		r := in.EditReason
		reason = &r
	}
	by := actor.ID

	var (
		changed []Snapshot
		audits  []AuditEntry
	)
	for _, r := range in.Records {
		next := Snapshot{Key: in.key, Record: r}
		prev, ok := byID[r.StudentID]
		var before []byte
		if ok {
			if sameRecord(prev.Record, r) {
				continue
			}
			next.SubmittedBy, next.SubmittedAt = prev.SubmittedBy, prev.SubmittedAt
			next.IsLocked, next.LockedBy, next.LockedAt = prev.IsLocked, prev.LockedBy, prev.LockedAt
			next.LastEditedBy, next.LastEditedAt = &by, &now
			before, _ = json.Marshal(prev.Record)
		} else {
			next.SubmittedBy, next.SubmittedAt = by, now
			next.IsLocked, next.LockedBy, next.LockedAt = sum.IsLocked, sum.LockedBy, sum.LockedAt
			if in.Kind == KindEdit {
				next.LastEditedBy, next.LastEditedAt = &by, &now
			}
		}
		after, _ := json.Marshal(next.Record)

		auditID, err := s.id.New()
		if err != nil {
			return nil, nil, fmt.Errorf("generate audit id: %w", err)
		}
		evID := eventID
		changed = append(changed, next)
		audits = append(audits, AuditEntry{
			AuditID:    auditID,
			EntityType: EntityRecord,
			EntityID:   in.key.String() + ":" + r.StudentID,
			Action:     action,
			ActorID:    actor.ID,
			Key:        in.key,
			EventID:    &evID,
			Before:     before,
			After:      after,
			Reason:     reason,
			CreatedAt:  now,
		})
	}
	return changed, audits, nil
}

func sameRecord(a, b Record) bool {
	return a.StudentID == b.StudentID && a.Status == b.Status &&
		eqStr(a.EarlyLeaveTime, b.EarlyLeaveTime) &&
		eqStr(a.EarlyLeaveReason, b.EarlyLeaveReason) &&
		eqStr(a.Notes, b.Notes)
}

func eqStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ===== 冪等性（replay） =====

func entryOf(ev *Event) ledgerEntry {
	return ledgerEntry{EventID: ev.EventID, Kind: ev.Kind, PayloadHash: ev.PayloadHash, CreatedAt: ev.CreatedAt}
}

func (s *Service) lookupReplay(ctx context.Context, in ingestInput) (ingestResult, bool, error) {
	var e ledgerEntry
	hit, err := s.cache.Get(ctx, in.IdempotencyKey, &e)
	if err != nil {
		s.log.Warn("replay cache get failed", "error", err)
		hit = false
	}
	if !hit {
		ev, err := s.store.FindEvent(ctx, s.conn, in.IdempotencyKey)
		if err != nil {
			return ingestResult{}, false, err
		}
		if ev == nil {
			return ingestResult{}, false, nil
		}
		e = entryOf(ev)
		s.remember(ctx, in.IdempotencyKey, e)
	}
	res, err := s.replayOf(ctx, e, in)
	return res, true, err
}

// replayOf: 記録済みの結果をそのまま返す。中身が違う場合は警告（strict なら Conflict）
func (s *Service) replayOf(_ context.Context, e ledgerEntry, in ingestInput) (ingestResult, error) {
	mismatch := e.PayloadHash != in.hash || e.Kind != in.Kind
	if mismatch {
		if s.strict {
			return ingestResult{}, ErrConflict("idempotencyKey was already used with a different payload")
		}
		s.log.Warn("idempotency key replayed with different payload",
			"idempotency_key", in.IdempotencyKey, "event_id", e.EventID, "kind", in.Kind, "recorded_kind", e.Kind)
	}
	return ingestResult{EventID: e.EventID, At: e.CreatedAt.UTC(), Replay: true, Mismatch: mismatch}, nil
}

func (s *Service) remember(ctx context.Context, key string, e ledgerEntry) {
	if err := s.cache.Set(ctx, key, e); err != nil {
		s.log.Warn("replay cache set failed", "error", err)
	}
}

// ===== 権限・名簿 =====

func (s *Service) authorize(ctx context.Context, actor auth.Actor, classID string) error {
	ok, err := s.roster.ClassExists(ctx, classID)
	if err != nil {
		return fmt.Errorf("class lookup: %w", err)
	}
	if !ok {
		return ErrNotFound("class not found")
	}
	if s.policy.IsPrivileged(actor) {
		return nil
	}
	assigned, err := s.roster.IsAssigned(ctx, actor.ID, classID)
	if err != nil {
		return fmt.Errorf("assignment lookup: %w", err)
	}
	if !assigned {
		return ErrForbidden("you are not assigned to this class")
	}
	return nil
}

func (s *Service) checkStudents(ctx context.Context, classID string, recs []Record) error {
	active, err := s.roster.ActiveStudentIDs(ctx, classID)
	if err != nil {
		return fmt.Errorf("roster lookup: %w", err)
	}
	for _, r := range recs {
		if _, ok := active[r.StudentID]; !ok {
			return ErrInvalid(fmt.Sprintf("student %q is not an active student of this class", r.StudentID))
		}
	}
	return nil
}

// ===== ロック / アンロック =====

// POST /attendance/lock
func (s *Service) Lock(ctx context.Context, actor auth.Actor, req LockRequest) (LockResponse, error) {
	return s.transition(ctx, actor, req, true)
}

// POST /attendance/unlock
func (s *Service) Unlock(ctx context.Context, actor auth.Actor, req LockRequest) (LockResponse, error) {
	return s.transition(ctx, actor, req, false)
}

type sessionView struct {
	Status   SummaryStatus `json:"status"`
	IsLocked bool          `json:"isLocked"`
	LockedBy *string       `json:"lockedBy,omitempty"`
	LockedAt *time.Time    `json:"lockedAt,omitempty"`
}

func viewOf(sum Summary) []byte {
	b, _ := json.Marshal(sessionView{Status: sum.Status, IsLocked: sum.IsLocked, LockedBy: sum.LockedBy, LockedAt: sum.LockedAt})
	return b
}

func (s *Service) transition(ctx context.Context, actor auth.Actor, req LockRequest, lock bool) (LockResponse, error) {
	action := ActionUnlock
	if lock {
		action = ActionLock
	}
	ctx, span := tracer.Start(ctx, "attendance."+action)
	defer span.End()

	if err := validateStruct(req); err != nil {
		return LockResponse{}, s.fail(span, err)
	}
	key, err := parseKey(req.ClassID, req.Date, req.Session)
	if err != nil {
		return LockResponse{}, s.fail(span, err)
	}
	reason := normalizeText(&req.Reason)
	if reason == nil {
		return LockResponse{}, s.fail(span, ErrInvalid("reason is required"))
	}
	if !s.policy.IsPrivileged(actor) {
		return LockResponse{}, s.fail(span, ErrForbidden("only privileged roles can lock or unlock sessions"))
	}
	span.SetAttributes(attribute.String("attendance.session_key", key.String()))

	err = db.RunInTxRetry(ctx, s.conn, s.dialect, txAttempts, func(ctx context.Context, tx db.DBTX) error {
		cur, err := s.store.LockExistingSummary(ctx, tx, key)
		if err != nil {
			return err
		}
		if cur == nil || cur.SubmittedAt == nil {
			return ErrNotFound("attendance session not found")
		}
		sum := *cur
		if lock && sum.IsLocked {
			return ErrConflict("session is already locked")
		}
		if !lock && !sum.IsLocked {
			return ErrConflict("session is not locked")
		}

		before := viewOf(sum)
		now := s.now()
		if lock {
			by := actor.ID
			sum.IsLocked, sum.LockedBy, sum.LockedAt, sum.Status = true, &by, &now, SummaryLocked
		} else {
			sum.IsLocked, sum.LockedBy, sum.LockedAt, sum.Status = false, nil, nil, SummarySynced
		}
		if err := s.store.SetSnapshotsLocked(ctx, tx, key, sum.IsLocked, sum.LockedBy, sum.LockedAt); err != nil {
			return err
		}
		all, err := s.store.ListSnapshots(ctx, tx, key)
		if err != nil {
			return err
		}
		sum.Counts = Summarize(all)
		if err := s.store.SaveSummary(ctx, tx, sum); err != nil {
			return err
		}

		auditID, err := s.id.New()
		if err != nil {
			return fmt.Errorf("generate audit id: %w", err)
		}
		return s.store.InsertAudit(ctx, tx, []AuditEntry{{
			AuditID:    auditID,
			EntityType: EntitySession,
			EntityID:   key.String(),
			Action:     action,
			ActorID:    actor.ID,
			Key:        key,
			Before:     before,
			After:      viewOf(sum),
			Reason:     reason,
			CreatedAt:  now,
		}})
	})
	if err != nil {
		return LockResponse{}, s.fail(span, err)
	}

	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(action).Inc()
	}
	s.log.Info("attendance session transition",
		"action", action, "session_key", key.String(), "actor", actor.ID, "reason", *reason)
	if lock {
		return LockResponse{Success: true, Message: "Session locked successfully"}, nil
	}
	return LockResponse{Success: true, Message: "Session unlocked successfully"}, nil
}

// ===== 参照 =====

// GET /attendance/:classId/:date/:session
func (s *Service) State(ctx context.Context, actor auth.Actor, classID, date string, session SessionType) (StateResponse, error) {
	ctx, span := tracer.Start(ctx, "attendance.State")
	defer span.End()

	key, err := parseKey(classID, date, session)
	if err != nil {
		return StateResponse{}, s.fail(span, err)
	}
	exists, err := s.roster.ClassExists(ctx, key.ClassID)
	if err != nil {
		return StateResponse{}, s.fail(span, fmt.Errorf("class lookup: %w", err))
	}
	if !exists {
		return StateResponse{}, s.fail(span, ErrNotFound("class not found"))
	}

	var (
		sum   *Summary
		snaps []Snapshot
	)
	err = db.ReadOnly(ctx, s.conn, func(ctx context.Context, tx db.DBTX) error {
		var err error
		if sum, err = s.store.GetSummary(ctx, tx, key); err != nil {
			return err
		}
		snaps, err = s.store.ListSnapshots(ctx, tx, key)
		return err
	})
	if err != nil {
		return StateResponse{}, s.fail(span, err)
	}
	if sum == nil {
		sum = &Summary{Key: key, Status: SummaryNotStarted}
	}

	canEdit := s.policy.CanEdit(actor, *sum, s.clock.Now())
	if canEdit && !s.policy.IsPrivileged(actor) {
		assigned, err := s.roster.IsAssigned(ctx, actor.ID, key.ClassID)
		if err != nil {
			return StateResponse{}, s.fail(span, fmt.Errorf("assignment lookup: %w", err))
		}
		canEdit = assigned
	}

	out := StateResponse{
		ClassID:          key.ClassID,
		Date:             key.Date,
		Session:          key.Session,
		Status:           sum.Status,
		IsLocked:         sum.IsLocked,
		Counts:           sum.Counts,
		SubmittedBy:      sum.SubmittedBy,
		SubmittedAt:      sum.SubmittedAt,
		LockedBy:         sum.LockedBy,
		LockedAt:         sum.LockedAt,
		Records:          make([]RecordResponse, 0, len(snaps)),
		CanEdit:          canEdit,
		EditWindowEndsAt: s.policy.WindowEndsAt(*sum),
	}
	for _, sn := range snaps {
		out.Records = append(out.Records, recordResponse(sn))
	}
	return out, nil
}

// GET /dashboard?date=YYYY-MM-DD
// 担当クラスごとに午前・午後の状態を返す。管理者は全クラス
func (s *Service) Dashboard(ctx context.Context, actor auth.Actor, date string) (DashboardResponse, error) {
	ctx, span := tracer.Start(ctx, "attendance.Dashboard")
	defer span.End()

	now := s.clock.Now()
	if date == "" {
		date = now.UTC().Format(DateLayout)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return DashboardResponse{}, s.fail(span, ErrInvalid("date must be YYYY-MM-DD"))
	}
	teacherID := actor.ID
	if s.policy.IsPrivileged(actor) {
		teacherID = ""
	}
	classes, err := s.roster.ListClasses(ctx, teacherID)
	if err != nil {
		return DashboardResponse{}, s.fail(span, fmt.Errorf("class lookup: %w", err))
	}

	out := DashboardResponse{Date: date, Classes: make([]DashboardClass, 0, len(classes))}
	err = db.ReadOnly(ctx, s.conn, func(ctx context.Context, tx db.DBTX) error {
		for _, c := range classes {
			dc := DashboardClass{ClassID: c.ClassID, Name: c.Name, Section: c.Section}
			for _, session := range []SessionType{SessionMorning, SessionAfternoon} {
				key, err := parseKey(c.ClassID, date, session)
				if err != nil {
					return err
				}
				sum, err := s.store.GetSummary(ctx, tx, key)
				if err != nil {
					return err
				}
				if sum == nil {
					sum = &Summary{Key: key, Status: SummaryNotStarted}
				}
				dc.Sessions = append(dc.Sessions, DashboardSession{
					Session:     session,
					Status:      sum.Status,
					IsLocked:    sum.IsLocked,
					Counts:      sum.Counts,
					SubmittedAt: sum.SubmittedAt,
					CanEdit:     s.policy.CanEdit(actor, *sum, now),
				})
			}
			out.Classes = append(out.Classes, dc)
		}
		return nil
	})
	if err != nil {
		return DashboardResponse{}, s.fail(span, err)
	}
	return out, nil
}

func recordResponse(sn Snapshot) RecordResponse {
	ref := StudentRef{ID: sn.StudentID, AdmissionNo: sn.AdmissionNo}
	if sn.FirstName != nil || sn.LastName != nil {
		ref.Name = joinName(sn.FirstName, sn.LastName)
	}
	r := RecordResponse{
		Student:      ref,
		Status:       sn.Status,
		Notes:        sn.Notes,
		SubmittedBy:  sn.SubmittedBy,
		SubmittedAt:  sn.SubmittedAt,
		LastEditedBy: sn.LastEditedBy,
		LastEditedAt: sn.LastEditedAt,
		IsLocked:     sn.IsLocked,
	}
	if sn.EarlyLeaveTime != nil {
		el := EarlyLeaveResponse{Time: *sn.EarlyLeaveTime}
		if sn.EarlyLeaveReason != nil {
			el.Reason = *sn.EarlyLeaveReason
		}
		r.EarlyLeave = &el
	}
	return r
}

func joinName(first, last *string) string {
	switch {
	case first != nil && last != nil:
		return *first + " " + *last
	case first != nil:
		return *first
	default:
		return *last
	}
}

// GET /attendance/:classId/:date/:session/audit
func (s *Service) Audit(ctx context.Context, actor auth.Actor, classID, date string, session SessionType) (AuditListResponse, error) {
	ctx, span := tracer.Start(ctx, "attendance.Audit")
	defer span.End()

	key, err := parseKey(classID, date, session)
	if err != nil {
		return AuditListResponse{}, s.fail(span, err)
	}
	if !s.policy.IsPrivileged(actor) {
		return AuditListResponse{}, s.fail(span, ErrForbidden("only privileged roles can read the audit trail"))
	}
	entries, err := s.store.ListAudit(ctx, s.conn, key)
	if err != nil {
		return AuditListResponse{}, s.fail(span, err)
	}
	out := AuditListResponse{Items: make([]AuditResponse, 0, len(entries))}
	for _, e := range entries {
		out.Items = append(out.Items, AuditResponse{
			AuditID:    e.AuditID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			ActorID:    e.ActorID,
			EventID:    e.EventID,
			Before:     rawOrNil(e.Before),
			After:      rawOrNil(e.After),
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out, nil
}

func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// ===== 計測 =====

func (s *Service) record(kind EventKind, res ingestResult, start time.Time) {
	if s.metrics == nil {
		return
	}
	outcome := "applied"
	if res.Replay {
		outcome = "replayed"
	}
	s.metrics.Ingest.WithLabelValues(string(kind), outcome).Inc()
	s.metrics.IngestTime.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}

func (s *Service) finish(span trace.Span, kind EventKind, start time.Time, err error) error {
	if s.metrics != nil {
		s.metrics.Ingest.WithLabelValues(string(kind), string(CodeOf(err))).Inc()
		if !start.IsZero() {
			s.metrics.IngestTime.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		}
	}
	return s.fail(span, err)
}

// fail: 想定外のエラーだけ span とログに error として残す
func (s *Service) fail(span trace.Span, err error) error {
	if CodeOf(err) == CodeInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("attendance operation failed", "error", err)
	}
	return err
}
