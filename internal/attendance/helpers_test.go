package attendance

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/auth"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/db"
	"github.com/nasirkhansayyad132/advanced-school-management/internal/roster"
)

var (
	teacher  = auth.Actor{ID: "t1", Role: "TEACHER"}
	stranger = auth.Actor{ID: "t2", Role: "TEACHER"}
	admin    = auth.Actor{ID: "a1", Role: "ADMIN"}

	t0 = time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type env struct {
	conn  *sql.DB
	svc   *Service
	clock *fakeClock
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	ctx := context.Background()
	conn, d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "attendance.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(ctx, conn, d); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rs := roster.NewStore(conn, d)
	if err := rs.Seed(ctx, roster.Fixture{
		Classes: []roster.Class{{ClassID: "c1", Name: "1-A"}},
		Students: []roster.Student{
			{StudentID: "s1", ClassID: "c1", AdmissionNo: "A001", FirstName: "Ani", LastName: "P"},
			{StudentID: "s2", ClassID: "c1", AdmissionNo: "A002", FirstName: "Bayu", LastName: "Q"},
			{StudentID: "s3", ClassID: "c1", AdmissionNo: "A003", FirstName: "Cici", LastName: "R", LifecycleState: "WITHDRAWN"},
		},
		Assignments: []roster.Assignment{{TeacherID: "t1", ClassID: "c1", IsPrimary: true}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	clock := &fakeClock{t: t0}
	opts = append([]Option{WithClock(clock)}, opts...)
	return &env{conn: conn, svc: NewService(conn, d, rs, opts...), clock: clock}
}

func rec(id string, st Status) RecordInput { return RecordInput{StudentID: id, Status: st} }

func submitReq(key string, recs ...RecordInput) SubmitRequest {
	return SubmitRequest{
		IdempotencyKey:  key,
		ClassID:         "c1",
		Date:            "2024-01-15",
		Session:         SessionMorning,
		Records:         recs,
		ClientCreatedAt: "2024-01-15T08:30:00Z",
	}
}

func editReq(key, reason string, recs ...RecordInput) EditRequest {
	return EditRequest{
		IdempotencyKey:  key,
		ClassID:         "c1",
		Date:            "2024-01-15",
		Session:         SessionMorning,
		EditReason:      reason,
		Records:         recs,
		ClientCreatedAt: "2024-01-15T09:00:00Z",
	}
}

func lockReq(reason string) LockRequest {
	return LockRequest{ClassID: "c1", Date: "2024-01-15", Session: SessionMorning, Reason: reason}
}

var morning = SessionKey{ClassID: "c1", Session: SessionMorning, Date: "2024-01-15"}

func (e *env) count(t *testing.T, q string, args ...any) int {
	t.Helper()
	var n int
	if err := e.conn.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", q, err)
	}
	return n
}

// assertConsistent: 保存済みの集計 == snapshot の数え直し
func (e *env) assertConsistent(t *testing.T) Summary {
	t.Helper()
	ctx := context.Background()
	sum, err := e.svc.store.GetSummary(ctx, e.conn, morning)
	if err != nil || sum == nil {
		t.Fatalf("GetSummary = (%v, %v)", sum, err)
	}
	snaps, err := e.svc.store.ListSnapshots(ctx, e.conn, morning)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if want := Summarize(snaps); sum.Counts != want {
		t.Fatalf("summary counts %+v != recomputed %+v", sum.Counts, want)
	}
	return *sum
}

func (e *env) recordAudits(t *testing.T) []AuditResponse {
	t.Helper()
	res, err := e.svc.Audit(context.Background(), admin, "c1", "2024-01-15", SessionMorning)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	var out []AuditResponse
	for _, a := range res.Items {
		if a.EntityType == EntityRecord {
			out = append(out, a)
		}
	}
	return out
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("code = %s, want %s (%v)", got, code, err)
	}
}

func actorWithRole(role string) auth.Actor { return auth.Actor{ID: "x", Role: role} }
