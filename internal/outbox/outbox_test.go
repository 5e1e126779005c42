package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/attendance"
)

var t0 = time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeTransport は届いた順にキーを記録する
type fakeTransport struct {
	mu        sync.Mutex
	offline   bool
	failNext  map[string]error // key -> 1回だけ返すエラー
	failAll   error
	delivered []string
	n         int
}

func (f *fakeTransport) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return fmt.Errorf("%w: no route", ErrOffline)
	}
	return nil
}

func (f *fakeTransport) Deliver(_ context.Context, e Event) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failNext[e.Key]; ok {
		delete(f.failNext, e.Key)
		return Receipt{}, err
	}
	if f.failAll != nil {
		return Receipt{}, f.failAll
	}
	f.n++
	f.delivered = append(f.delivered, e.Key)
	return Receipt{EventID: fmt.Sprintf("srv-%d", f.n), At: t0}, nil
}

func (f *fakeTransport) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.delivered...)
}

var transient = &DeliveryError{Status: 503, Code: "UNAVAILABLE", Message: "try later"}

func newOutbox(t *testing.T, q Queue, tr Transport, opts Options) (*Outbox, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: t0}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = 10 * time.Second
		opts.BackoffMax = time.Minute
	}
	return New(q, tr, "t1", opts, WithClock(clock)), clock
}

func draft(kind attendance.EventKind, class string, st attendance.Status) Draft {
	d := Draft{
		ClassID: class,
		Date:    "2024-01-15",
		Session: attendance.SessionMorning,
		Kind:    kind,
		Records: []attendance.RecordInput{{StudentID: "s1", Status: st}},
	}
	if kind == attendance.KindEdit {
		d.EditReason = "correction"
	}
	return d
}

func mustEnqueue(t *testing.T, o *Outbox, d Draft) Event {
	t.Helper()
	e, err := o.Enqueue(context.Background(), d)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return e
}

func mustGet(t *testing.T, q Queue, key string) Event {
	t.Helper()
	e, err := q.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get %s: %v", key, err)
	}
	return e
}

func TestEnqueue(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			q := open(t)
			o, _ := newOutbox(t, q, &fakeTransport{}, Options{})

			e := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))
			if !strings.HasPrefix(e.Key, "t1:c1:2024-01-15:MORNING:SUBMIT:") || len(e.seq()) != 26 {
				t.Fatalf("key = %q", e.Key)
			}
			stored := mustGet(t, q, e.Key)
			if stored.Status != StatusPending || stored.RetryCount != 0 {
				t.Fatalf("stored = %+v", stored)
			}
			if !strings.Contains(string(stored.Payload), `"idempotencyKey":"`+e.Key+`"`) {
				t.Fatalf("payload does not carry the key: %s", stored.Payload)
			}

			_, err := o.Enqueue(context.Background(), Draft{ClassID: "c1", Date: "2024-01-15", Session: "NIGHT", Kind: attendance.KindSubmit})
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("invalid draft = %v", err)
			}
			edit := draft(attendance.KindEdit, "c1", attendance.StatusLate)
			edit.EditReason = " "
			if _, err := o.Enqueue(context.Background(), edit); !errors.Is(err, ErrInvalid) {
				t.Fatalf("edit without reason = %v", err)
			}
		})
	}
}

// SUBMIT(E1) の後の EDIT(E2) は、E1 が届くまで送らない
func TestSyncAllKeepsOrderWithinSession(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := open(t)
			tr := &fakeTransport{failNext: map[string]error{}}
			o, clock := newOutbox(t, q, tr, Options{Parallelism: 4})

			e1 := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))
			e2 := mustEnqueue(t, o, draft(attendance.KindEdit, "c1", attendance.StatusLate))
			other := mustEnqueue(t, o, draft(attendance.KindSubmit, "c2", attendance.StatusAbsent))
			tr.failNext[e1.Key] = transient

			rep, err := o.SyncAll(ctx)
			if err != nil {
				t.Fatalf("SyncAll: %v", err)
			}
			if rep.Failed != 1 || rep.Synced != 1 {
				t.Fatalf("first pass = %+v", rep)
			}
			if got := tr.order(); len(got) != 1 || got[0] != other.Key {
				t.Fatalf("delivered = %v, only the other session should go through", got)
			}
			if s := mustGet(t, q, e2.Key).Status; s != StatusPending {
				t.Fatalf("E2 status = %s, want PENDING", s)
			}
			failed := mustGet(t, q, e1.Key)
			if failed.Status != StatusFailed || failed.RetryCount != 1 || failed.LastError == nil {
				t.Fatalf("E1 = %+v", failed)
			}

			// backoff 中は送らない
			rep, _ = o.SyncAll(ctx)
			if rep.Deferred != 1 || rep.Attempted != 0 {
				t.Fatalf("pass during backoff = %+v", rep)
			}

			clock.Add(10 * time.Second)
			if _, err := o.SyncAll(ctx); err != nil {
				t.Fatal(err)
			}
			got := tr.order()
			if len(got) != 3 || got[1] != e1.Key || got[2] != e2.Key {
				t.Fatalf("delivered = %v, want E1 before E2", got)
			}
			for _, k := range []string{e1.Key, e2.Key} {
				if e := mustGet(t, q, k); e.Status != StatusSynced || e.ServerEventID == nil || e.SyncedAt == nil {
					t.Fatalf("%s = %+v", k, e)
				}
			}
		})
	}
}

func TestSyncAllOffline(t *testing.T) {
	q, _ := OpenBadger("")
	defer q.Close()
	tr := &fakeTransport{offline: true}
	o, _ := newOutbox(t, q, tr, Options{})

	e1 := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))
	mustEnqueue(t, o, draft(attendance.KindEdit, "c1", attendance.StatusLate))

	rep, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Offline != 1 || rep.Attempted != 1 || rep.Failed != 0 {
		t.Fatalf("offline pass = %+v", rep)
	}
	e := mustGet(t, q, e1.Key)
	if e.Status != StatusPending || e.RetryCount != 0 || e.LastAttemptAt != nil {
		t.Fatalf("offline must leave the event untouched: %+v", e)
	}

	tr.mu.Lock()
	tr.offline = false
	tr.mu.Unlock()
	rep, _ = o.SyncAll(context.Background())
	if rep.Synced != 2 {
		t.Fatalf("back online = %+v", rep)
	}
}

func TestRetryBudgetAndManualRetry(t *testing.T) {
	q, _ := OpenBadger("")
	defer q.Close()
	tr := &fakeTransport{failAll: transient}
	o, clock := newOutbox(t, q, tr, Options{MaxRetries: 3, BackoffBase: time.Second, BackoffMax: 4 * time.Second})
	e := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := o.SyncAll(ctx); err != nil {
			t.Fatal(err)
		}
		clock.Add(time.Minute)
	}
	if got := mustGet(t, q, e.Key); got.RetryCount != 3 || got.Status != StatusFailed {
		t.Fatalf("after budget = %+v", got)
	}
	rep, _ := o.SyncAll(ctx)
	if len(rep.Exhausted) != 1 || rep.Exhausted[0] != e.Key || rep.Attempted != 0 {
		t.Fatalf("exhausted pass = %+v", rep)
	}

	tr.mu.Lock()
	tr.failAll = nil
	tr.mu.Unlock()
	if _, err := o.Retry(ctx, e.Key); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	rep, _ = o.SyncAll(ctx)
	if rep.Synced != 1 {
		t.Fatalf("after manual retry = %+v", rep)
	}
	if _, err := o.Retry(ctx, e.Key); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Retry on SYNCED = %v", err)
	}
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	q, _ := OpenBadger("")
	defer q.Close()
	tr := &fakeTransport{failAll: &DeliveryError{Status: 403, Code: "FORBIDDEN", Message: "session is locked", Permanent: true}}
	o, clock := newOutbox(t, q, tr, Options{})
	e := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))

	if _, err := o.SyncAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := mustGet(t, q, e.Key)
	if got.Status != StatusFailed || !got.Permanent || !strings.Contains(*got.LastError, "FORBIDDEN") {
		t.Fatalf("event = %+v", got)
	}
	clock.Add(time.Hour)
	rep, _ := o.SyncAll(context.Background())
	if rep.Attempted != 0 || len(rep.Exhausted) != 1 {
		t.Fatalf("permanent failure retried: %+v", rep)
	}
}

func TestRecoverStuck(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q := open(t)
			o, _ := newOutbox(t, q, &fakeTransport{}, Options{})

			old := t0.Add(-time.Minute)
			recent := t0.Add(-5 * time.Second)
			for k, at := range map[string]time.Time{"a:old": old, "a:recent": recent} {
				e := sample(k, t0.Add(-time.Hour), StatusSyncing)
				e.LastAttemptAt = &at
				if err := q.Put(ctx, e); err != nil {
					t.Fatal(err)
				}
			}

			n, err := o.RecoverStuck(ctx, 15*time.Second)
			if err != nil || n != 1 {
				t.Fatalf("RecoverStuck = (%d, %v), want 1", n, err)
			}
			if s := mustGet(t, q, "a:old").Status; s != StatusPending {
				t.Fatalf("old = %s", s)
			}
			if s := mustGet(t, q, "a:recent").Status; s != StatusSyncing {
				t.Fatalf("recent = %s", s)
			}

			// 起動時は全部戻す
			if n, _ := o.RecoverStuck(ctx, 0); n != 1 {
				t.Fatalf("startup recover = %d", n)
			}
		})
	}
}

func TestSyncingEventBlocksItsSession(t *testing.T) {
	ctx := context.Background()
	q, _ := OpenBadger("")
	defer q.Close()
	tr := &fakeTransport{}
	o, _ := newOutbox(t, q, tr, Options{})

	e1 := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))
	mustEnqueue(t, o, draft(attendance.KindEdit, "c1", attendance.StatusLate))
	at := t0
	if err := q.Update(ctx, e1.Key, func(e *Event) error {
		e.Status, e.LastAttemptAt = StatusSyncing, &at
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	rep, _ := o.SyncAll(ctx)
	if rep.Attempted != 0 || len(tr.order()) != 0 {
		t.Fatalf("later event overtook an in-flight one: %+v", rep)
	}
}

// blockingTransport は Deliver でキャンセルされるまで止まる
type blockingTransport struct {
	once    sync.Once
	started chan struct{}
}

func (b *blockingTransport) Ping(context.Context) error { return nil }

func (b *blockingTransport) Deliver(ctx context.Context, _ Event) (Receipt, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return Receipt{}, ctx.Err()
}

func TestInterruptedDeliveryReturnsToPending(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			q := open(t)
			bt := &blockingTransport{started: make(chan struct{})}
			o, _ := newOutbox(t, q, bt, Options{})
			e1 := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))
			e2 := mustEnqueue(t, o, draft(attendance.KindEdit, "c1", attendance.StatusLate))

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				<-bt.started
				cancel()
			}()
			if _, err := o.SyncAll(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("SyncAll err = %v, want context.Canceled", err)
			}
			got := mustGet(t, q, e1.Key)
			if got.Status != StatusPending || got.RetryCount != 0 {
				t.Fatalf("E1 after cancel = %s (retries %d)", got.Status, got.RetryCount)
			}

			// 次の一回限りの sync で順番どおりに届く
			tr := &fakeTransport{}
			o2, _ := newOutbox(t, q, tr, Options{})
			rep, err := o2.SyncAll(context.Background())
			if err != nil || rep.Synced != 2 {
				t.Fatalf("SyncAll = (%+v, %v)", rep, err)
			}
			if got := tr.order(); len(got) != 2 || got[0] != e1.Key || got[1] != e2.Key {
				t.Fatalf("order = %v", got)
			}
		})
	}
}

// クラッシュで残った古い SYNCING は Run を待たずに SyncAll が戻す
func TestSyncAllRecoversStaleSyncing(t *testing.T) {
	ctx := context.Background()
	q, err := OpenSQLite(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer q.Close()
	tr := &fakeTransport{}
	o, clock := newOutbox(t, q, tr, Options{AttemptTimeout: 15 * time.Second})

	e1 := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))
	e2 := mustEnqueue(t, o, draft(attendance.KindEdit, "c1", attendance.StatusLate))
	at := t0
	if err := q.Update(ctx, e1.Key, func(e *Event) error {
		e.Status, e.LastAttemptAt = StatusSyncing, &at
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	clock.Add(time.Hour)
	rep, err := o.SyncAll(ctx)
	if err != nil || rep.Synced != 2 {
		t.Fatalf("SyncAll = (%+v, %v)", rep, err)
	}
	if got := tr.order(); len(got) != 2 || got[0] != e1.Key || got[1] != e2.Key {
		t.Fatalf("order = %v", got)
	}
}

func TestStatusAndCleanup(t *testing.T) {
	ctx := context.Background()
	q, _ := OpenBadger("")
	defer q.Close()
	tr := &fakeTransport{failNext: map[string]error{}}
	o, clock := newOutbox(t, q, tr, Options{Parallelism: 2})

	ok := mustEnqueue(t, o, draft(attendance.KindSubmit, "c1", attendance.StatusPresent))
	bad := mustEnqueue(t, o, draft(attendance.KindSubmit, "c2", attendance.StatusPresent))
	tr.failNext[bad.Key] = &DeliveryError{Status: 400, Code: "INVALID_ARGUMENT", Permanent: true}
	if _, err := o.SyncAll(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := o.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Counts[StatusSynced] != 1 || st.Counts[StatusFailed] != 1 || len(st.Events) != 2 {
		t.Fatalf("status = %+v", st.Counts)
	}

	if n, _ := o.Cleanup(ctx, time.Hour); n != 0 {
		t.Fatalf("fresh SYNCED row cleaned: %d", n)
	}
	clock.Add(2 * time.Hour)
	if n, _ := o.Cleanup(ctx, time.Hour); n != 1 {
		t.Fatalf("Cleanup = %d, want 1", n)
	}
	if _, err := q.Get(ctx, ok.Key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("synced row still there: %v", err)
	}
	if e := mustGet(t, q, bad.Key); e.Status != StatusFailed {
		t.Fatalf("FAILED row removed or changed: %+v", e)
	}
}

func TestBackoff(t *testing.T) {
	o := New(nil, nil, "t1", Options{BackoffBase: 2 * time.Second, BackoffMax: 30 * time.Second})
	want := []time.Duration{0, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for n, w := range want {
		if got := o.backoff(n); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", n, got, w)
		}
	}
}
