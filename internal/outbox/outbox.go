package outbox

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/attendance"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/config"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/logger"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/observability"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Options struct {
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	AttemptTimeout time.Duration
	SyncInterval   time.Duration
	Parallelism    int
}

func OptionsFrom(c config.OutboxConfig) Options {
	return Options{
		MaxRetries:     c.MaxRetries,
		BackoffBase:    time.Duration(c.BackoffBaseSeconds) * time.Second,
		BackoffMax:     time.Duration(c.BackoffMaxSeconds) * time.Second,
		AttemptTimeout: time.Duration(c.AttemptTimeoutSec) * time.Second,
		SyncInterval:   time.Duration(c.SyncIntervalSec) * time.Second,
		Parallelism:    c.Parallelism,
	}
}

type Outbox struct {
	q       Queue
	tr      Transport
	actorID string
	opts    Options

	clock   Clock
	log     *logger.Logger
	metrics *observability.OutboxMetrics

	mu      sync.Mutex
	entropy io.Reader
}

type Option func(*Outbox)

func WithClock(c Clock) Option                          { return func(o *Outbox) { o.clock = c } }
func WithLogger(l *logger.Logger) Option                { return func(o *Outbox) { o.log = l } }
func WithMetrics(m *observability.OutboxMetrics) Option { return func(o *Outbox) { o.metrics = m } }

func New(q Queue, tr Transport, actorID string, opts Options, options ...Option) *Outbox {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 8
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = opts.BackoffBase
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 15 * time.Second
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 30 * time.Second
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	o := &Outbox{
		q:       q,
		tr:      tr,
		actorID: actorID,
		opts:    opts,
		clock:   realClock{},
		log:     logger.Nop(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, fn := range options {
		fn(o)
	}
	o.log = o.log.With("component", "outbox")
	return o
}

func (o *Outbox) newULID() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(o.clock.Now().UTC()), o.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Enqueue =====

// Enqueue は送信前に PENDING として保存する。冪等キーはここで一度だけ作る
func (o *Outbox) Enqueue(ctx context.Context, d Draft) (Event, error) {
	if err := o.checkDraft(d); err != nil {
		return Event{}, err
	}
	id, err := o.newULID()
	if err != nil {
		return Event{}, fmt.Errorf("generate key: %w", err)
	}
	now := o.clock.Now().UTC()
	key := strings.Join([]string{o.actorID, d.ClassID, d.Date, string(d.Session), string(d.Kind), id}, ":")

	var body any
	switch d.Kind {
	case attendance.KindSubmit:
		body = attendance.SubmitRequest{
			IdempotencyKey:  key,
			ClassID:         d.ClassID,
			Date:            d.Date,
			Session:         d.Session,
			Records:         d.Records,
			ClientCreatedAt: now.Format(time.RFC3339),
		}
	case attendance.KindEdit:
		body = attendance.EditRequest{
			IdempotencyKey:  key,
			ClassID:         d.ClassID,
			Date:            d.Date,
			Session:         d.Session,
			EditReason:      d.EditReason,
			Records:         d.Records,
			ClientCreatedAt: now.Format(time.RFC3339),
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Event{}, fmt.Errorf("marshal payload: %w", err)
	}

	e := Event{
		Key:       key,
		ActorID:   o.actorID,
		ClassID:   d.ClassID,
		Date:      d.Date,
		Session:   d.Session,
		Kind:      d.Kind,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
	}
	if err := o.q.Put(ctx, e); err != nil {
		return Event{}, fmt.Errorf("store event: %w", err)
	}
	o.log.Info("outbox event queued", "key", key, "records", len(d.Records))
	return e, nil
}

func (o *Outbox) checkDraft(d Draft) error {
	switch {
	case o.actorID == "":
		return fmt.Errorf("%w: actor id is not configured", ErrInvalid)
	case strings.TrimSpace(d.ClassID) == "" || strings.Contains(d.ClassID, ":"):
		return fmt.Errorf("%w: classId", ErrInvalid)
	case !d.Session.Valid():
		return fmt.Errorf("%w: session must be MORNING or AFTERNOON", ErrInvalid)
	case d.Kind != attendance.KindSubmit && d.Kind != attendance.KindEdit:
		return fmt.Errorf("%w: kind must be SUBMIT or EDIT", ErrInvalid)
	case len(d.Records) == 0:
		return fmt.Errorf("%w: records must not be empty", ErrInvalid)
	case d.Kind == attendance.KindEdit && strings.TrimSpace(d.EditReason) == "":
		return fmt.Errorf("%w: editReason is required for EDIT", ErrInvalid)
	}
	if _, err := time.Parse(attendance.DateLayout, d.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
	}
	return nil
}

// ===== 配送 =====

// AttemptDelivery は1件送る。オフラインなら状態を変えずに ErrOffline を返す
func (o *Outbox) AttemptDelivery(ctx context.Context, key string) (Event, error) {
	e, err := o.q.Get(ctx, key)
	if err != nil {
		return Event{}, err
	}
	switch e.Status {
	case StatusSynced:
		return e, nil
	case StatusSyncing:
		return e, ErrInFlight
	}

	if err := o.tr.Ping(ctx); err != nil {
		o.count("offline")
		return e, err
	}

	started := o.clock.Now().UTC()
	err = o.q.Update(ctx, key, func(cur *Event) error {
		if cur.Status != StatusPending && cur.Status != StatusFailed {
			return ErrInFlight
		}
		cur.Status = StatusSyncing
		cur.LastAttemptAt = &started
		return nil
	})
	if err != nil {
		return e, err
	}

	actx, cancel := context.WithTimeout(ctx, o.opts.AttemptTimeout)
	rcpt, derr := o.tr.Deliver(actx, e)
	cancel()

	// 結果は呼び出し側がキャンセルしても必ず書く（SYNCING のまま残さない）
	wctx := context.WithoutCancel(ctx)
	aborted := derr != nil && ctx.Err() != nil
	err = o.q.Update(wctx, key, func(cur *Event) error {
		if aborted {
			// 中断は失敗に数えない
			cur.Status = StatusPending
			return nil
		}
		if derr == nil {
			now := o.clock.Now().UTC()
			id := rcpt.EventID
			cur.Status = StatusSynced
			cur.ServerEventID = &id
			cur.SyncedAt = &now
			cur.LastError = nil
			cur.Permanent = false
			return nil
		}
		msg := derr.Error()
		cur.Status = StatusFailed
		cur.RetryCount++
		cur.LastError = &msg
		var de *DeliveryError
		cur.Permanent = errors.As(derr, &de) && de.Permanent
		return nil
	})
	if err != nil {
		return e, err
	}
	e, err = o.q.Get(wctx, key)
	if err != nil {
		return Event{}, err
	}

	if aborted {
		o.log.Warn("outbox delivery interrupted", "key", key, "error", derr)
		return e, derr
	}
	if derr != nil {
		o.count("failed")
		o.log.Warn("outbox delivery failed", "key", key, "retry_count", e.RetryCount, "error", derr)
		return e, derr
	}
	o.count("synced")
	o.log.Info("outbox event synced", "key", key, "event_id", rcpt.EventID, "already_processed", rcpt.AlreadyProcessed)
	return e, nil
}

// backoff: base * 2^(n-1)、上限 max
func (o *Outbox) backoff(retries int) time.Duration {
	if retries <= 0 {
		return 0
	}
	d := o.opts.BackoffBase
	for i := 1; i < retries; i++ {
		d *= 2
		if d >= o.opts.BackoffMax {
			return o.opts.BackoffMax
		}
	}
	return d
}

type readiness int

const (
	ready readiness = iota
	deferred
	exhausted
	blocked
)

func (o *Outbox) readiness(e Event, now time.Time) readiness {
	switch e.Status {
	case StatusPending:
		return ready
	case StatusSyncing:
		return blocked
	case StatusFailed:
		if e.Permanent || e.RetryCount >= o.opts.MaxRetries {
			return exhausted
		}
		if e.LastAttemptAt != nil && now.Before(e.LastAttemptAt.Add(o.backoff(e.RetryCount))) {
			return deferred
		}
		return ready
	}
	return blocked
}

// SyncAll は未送信を送る。同じ (class, session, date) は作成順に1件ずつ、
// 途中で失敗したらその組の残りは次回に回す。別の組は並列。
func (o *Outbox) SyncAll(ctx context.Context) (Report, error) {
	// 前回の中断やクラッシュで残った SYNCING を先に戻す
	if _, err := o.RecoverStuck(ctx, o.opts.AttemptTimeout); err != nil {
		return Report{}, err
	}
	events, err := o.q.List(ctx, StatusPending, StatusFailed, StatusSyncing)
	if err != nil {
		return Report{}, err
	}

	var (
		order  []string
		groups = map[string][]Event{}
	)
	for _, e := range events {
		g := e.Group()
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], e)
	}

	var (
		mu  sync.Mutex
		rep Report
	)
	add := func(fn func(r *Report)) {
		mu.Lock()
		defer mu.Unlock()
		fn(&rep)
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.opts.Parallelism)
	for _, g := range order {
		chain := groups[g]
		eg.Go(func() error {
			for _, e := range chain {
				if err := gctx.Err(); err != nil {
					return err
				}
				switch o.readiness(e, o.clock.Now()) {
				case deferred:
					add(func(r *Report) { r.Deferred++ })
					return nil
				case exhausted:
					add(func(r *Report) { r.Exhausted = append(r.Exhausted, e.Key) })
					return nil
				case blocked:
					return nil
				}

				add(func(r *Report) { r.Attempted++ })
				_, err := o.AttemptDelivery(gctx, e.Key)
				var de *DeliveryError
				switch {
				case err == nil:
					add(func(r *Report) { r.Synced++ })
				case errors.Is(err, ErrOffline):
					add(func(r *Report) { r.Offline++ })
					return nil
				case errors.As(err, &de), errors.Is(err, ErrInFlight):
					add(func(r *Report) { r.Failed++ })
					return nil
				default:
					return fmt.Errorf("deliver %s: %w", e.Key, err)
				}
			}
			return nil
		})
	}
	err = eg.Wait()
	o.gauge(ctx)
	return rep, err
}

// ===== 保守 =====

// RecoverStuck は olderThan より前から SYNCING のままの行を PENDING に戻す（0 なら全部）
func (o *Outbox) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	stuck, err := o.q.List(ctx, StatusSyncing)
	if err != nil {
		return 0, err
	}
	now := o.clock.Now()
	n := 0
	for _, e := range stuck {
		if olderThan > 0 && e.LastAttemptAt != nil && now.Sub(*e.LastAttemptAt) < olderThan {
			continue
		}
		err := o.q.Update(ctx, e.Key, func(cur *Event) error {
			if cur.Status != StatusSyncing {
				return errSkip
			}
			cur.Status = StatusPending
			return nil
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		o.log.Warn("outbox event reset from SYNCING", "key", e.Key)
	}
	return n, nil
}

var errSkip = errors.New("skip")

// Retry は FAILED を手動で PENDING に戻す（再送回数もリセット）
func (o *Outbox) Retry(ctx context.Context, key string) (Event, error) {
	err := o.q.Update(ctx, key, func(cur *Event) error {
		if cur.Status != StatusFailed {
			return fmt.Errorf("%w: only FAILED events can be retried (status %s)", ErrInvalid, cur.Status)
		}
		cur.Status = StatusPending
		cur.RetryCount = 0
		cur.Permanent = false
		return nil
	})
	if err != nil {
		return Event{}, err
	}
	return o.q.Get(ctx, key)
}

func (o *Outbox) Status(ctx context.Context) (StatusReport, error) {
	all, err := o.q.List(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	rep := StatusReport{Counts: map[Status]int{}, Events: all}
	for _, e := range all {
		rep.Counts[e.Status]++
	}
	return rep, nil
}

// Cleanup は olderThan より前に SYNCED になった行を消す。FAILED は残す
func (o *Outbox) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	synced, err := o.q.List(ctx, StatusSynced)
	if err != nil {
		return 0, err
	}
	cutoff := o.clock.Now().Add(-olderThan)
	n := 0
	for _, e := range synced {
		if e.SyncedAt == nil || !e.SyncedAt.Before(cutoff) {
			continue
		}
		if err := o.q.Delete(ctx, e.Key); err != nil && !errors.Is(err, ErrNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}

// Run は起動時に SYNCING を全部戻してから、一定間隔で SyncAll を回す（古い SYNCING は SyncAll が戻す）
func (o *Outbox) Run(ctx context.Context) error {
	if n, err := o.RecoverStuck(ctx, 0); err != nil {
		return err
	} else if n > 0 {
		o.log.Info("outbox recovered events at startup", "count", n)
	}

	t := time.NewTicker(o.opts.SyncInterval)
	defer t.Stop()
	for {
		rep, err := o.SyncAll(ctx)
		if err != nil && ctx.Err() == nil {
			o.log.Error("outbox sync pass failed", "error", err)
		} else if rep.Attempted > 0 {
			o.log.Info("outbox sync pass", "attempted", rep.Attempted, "synced", rep.Synced,
				"failed", rep.Failed, "offline", rep.Offline, "exhausted", len(rep.Exhausted))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// ===== 計測 =====

func (o *Outbox) count(result string) {
	if o.metrics != nil {
		o.metrics.Deliveries.WithLabelValues(result).Inc()
	}
}

func (o *Outbox) gauge(ctx context.Context) {
	if o.metrics == nil {
		return
	}
	st, err := o.Status(ctx)
	if err != nil {
		return
	}
	for _, s := range []Status{StatusPending, StatusSyncing, StatusSynced, StatusFailed} {
		o.metrics.Queued.WithLabelValues(string(s)).Set(float64(st.Counts[s]))
	}
}
