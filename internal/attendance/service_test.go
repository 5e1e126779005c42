package attendance

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubmitIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := submitReq("t1:c1:2024-01-15:MORNING:SUBMIT:1", rec("s1", StatusPresent), rec("s2", StatusAbsent))

	first, err := e.svc.Submit(ctx, teacher, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.AlreadyProcessed || first.EventID == "" {
		t.Fatalf("first = %+v", first)
	}

	e.clock.Set(t0.Add(time.Minute))
	second, err := e.svc.Submit(ctx, teacher, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.AlreadyProcessed || second.EventID != first.EventID || !second.SyncedAt.Equal(first.SyncedAt) {
		t.Fatalf("replay = %+v, first = %+v", second, first)
	}
	if second.PayloadMismatch {
		t.Fatal("identical payload flagged as mismatch")
	}

	if n := e.count(t, `SELECT COUNT(*) FROM attendance_events`); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
	if n := len(e.recordAudits(t)); n != 2 {
		t.Fatalf("record audits = %d, want 2", n)
	}
	e.assertConsistent(t)
}

func TestSubmitConcurrentSameKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := submitReq("t1:c1:2024-01-15:MORNING:SUBMIT:race", rec("s1", StatusPresent), rec("s2", StatusLate))

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]int{}
		applied int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.svc.Submit(ctx, teacher, req)
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[res.EventID]++
			if !res.AlreadyProcessed {
				applied++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Fatalf("callers saw different event ids: %v", ids)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want exactly 1", applied)
	}
	if c := e.count(t, `SELECT COUNT(*) FROM attendance_events`); c != 1 {
		t.Fatalf("events = %d, want 1", c)
	}
	if c := len(e.recordAudits(t)); c != 2 {
		t.Fatalf("record audits = %d, want 2", c)
	}
	e.assertConsistent(t)
}

func TestReplayWithDifferentPayload(t *testing.T) {
	ctx := context.Background()
	key := "t1:c1:2024-01-15:MORNING:SUBMIT:x"

	t.Run("default returns prior result", func(t *testing.T) {
		e := newEnv(t)
		first, err := e.svc.Submit(ctx, teacher, submitReq(key, rec("s1", StatusPresent)))
		if err != nil {
			t.Fatal(err)
		}
		res, err := e.svc.Submit(ctx, teacher, submitReq(key, rec("s1", StatusAbsent)))
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if !res.AlreadyProcessed || !res.PayloadMismatch || res.EventID != first.EventID {
			t.Fatalf("res = %+v", res)
		}
		// 中身は最初のまま
		sum := e.assertConsistent(t)
		if sum.Present != 1 || sum.Absent != 0 {
			t.Fatalf("summary changed by replay: %+v", sum.Counts)
		}
	})

	t.Run("strict is conflict", func(t *testing.T) {
		e := newEnv(t, WithStrictReplay(true))
		if _, err := e.svc.Submit(ctx, teacher, submitReq(key, rec("s1", StatusPresent))); err != nil {
			t.Fatal(err)
		}
		_, err := e.svc.Submit(ctx, teacher, submitReq(key, rec("s1", StatusAbsent)))
		wantCode(t, err, CodeConflict)
		// 同じ内容なら strict でも replay
		res, err := e.svc.Submit(ctx, teacher, submitReq(key, rec("s1", StatusPresent)))
		if err != nil || !res.AlreadyProcessed {
			t.Fatalf("identical replay = (%+v, %v)", res, err)
		}
	})
}

func TestSubmitValidationAndAuthorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		mod  func(*SubmitRequest)
		code Code
	}{
		{"empty records", func(r *SubmitRequest) { r.Records = nil }, CodeInvalidArgument},
		{"bad status", func(r *SubmitRequest) { r.Records = []RecordInput{rec("s1", "HERE")} }, CodeInvalidArgument},
		{"bad session", func(r *SubmitRequest) { r.Session = "EVENING" }, CodeInvalidArgument},
		{"bad date", func(r *SubmitRequest) { r.Date = "2024-13-01" }, CodeInvalidArgument},
		{"duplicate student", func(r *SubmitRequest) {
			r.Records = []RecordInput{rec("s1", StatusPresent), rec("s1", StatusAbsent)}
		}, CodeInvalidArgument},
		{"inactive student", func(r *SubmitRequest) { r.Records = []RecordInput{rec("s3", StatusPresent)} }, CodeInvalidArgument},
		{"unknown student", func(r *SubmitRequest) { r.Records = []RecordInput{rec("zz", StatusPresent)} }, CodeInvalidArgument},
		{"early leave without reason", func(r *SubmitRequest) {
			r.Records = []RecordInput{{StudentID: "s1", Status: StatusPresent, EarlyLeave: &EarlyLeaveInput{Time: "11:30", Reason: "  "}}}
		}, CodeInvalidArgument},
		{"early leave bad time", func(r *SubmitRequest) {
			r.Records = []RecordInput{{StudentID: "s1", Status: StatusPresent, EarlyLeave: &EarlyLeaveInput{Time: "25:00", Reason: "doctor"}}}
		}, CodeInvalidArgument},
		{"bad client time", func(r *SubmitRequest) { r.ClientCreatedAt = "yesterday" }, CodeInvalidArgument},
		{"unknown class", func(r *SubmitRequest) { r.ClassID = "c9" }, CodeNotFound},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := submitReq("k-"+string(rune('a'+i)), rec("s1", StatusPresent))
			tc.mod(&req)
			_, err := e.svc.Submit(ctx, teacher, req)
			wantCode(t, err, tc.code)
		})
	}

	_, err := e.svc.Submit(ctx, stranger, submitReq("k-stranger", rec("s1", StatusPresent)))
	wantCode(t, err, CodeForbidden)

	// 担当外でも管理者は通る
	if _, err := e.svc.Submit(ctx, admin, submitReq("k-admin", rec("s1", StatusPresent))); err != nil {
		t.Fatalf("admin submit: %v", err)
	}
	// 失敗したキーは消費されない
	if n := e.count(t, `SELECT COUNT(*) FROM attendance_events`); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
}

func TestEditRequiresSubmission(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Edit(context.Background(), teacher, editReq("e1", "fix", rec("s1", StatusLate)))
	wantCode(t, err, CodeNotFound)
	if n := e.count(t, `SELECT COUNT(*) FROM attendance_session_summaries`); n != 0 {
		t.Fatalf("failed edit left %d summary rows", n)
	}

	_, err = e.svc.Edit(context.Background(), teacher, editReq("e2", "   ", rec("s1", StatusLate)))
	wantCode(t, err, CodeInvalidArgument)
}

func TestEditWindowBoundary(t *testing.T) {
	ctx := context.Background()
	window := 120 * time.Minute

	for _, tc := range []struct {
		name    string
		admin   bool
		offset  time.Duration
		allowed bool
	}{
		{"teacher just inside", false, window - time.Second, true},
		{"teacher at deadline", false, window, false},
		{"teacher just past", false, window + time.Second, false},
		{"admin just inside", true, window - time.Second, true},
		{"admin just past", true, window + time.Second, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			if _, err := e.svc.Submit(ctx, teacher, submitReq("s", rec("s1", StatusPresent), rec("s2", StatusAbsent))); err != nil {
				t.Fatal(err)
			}
			e.clock.Set(t0.Add(tc.offset))
			actor := teacher
			if tc.admin {
				actor = admin
			}
			_, err := e.svc.Edit(ctx, actor, editReq("e", "late bus", rec("s2", StatusLate)))
			if tc.allowed && err != nil {
				t.Fatalf("edit: %v", err)
			}
			if !tc.allowed {
				wantCode(t, err, CodeForbidden)
			}
			e.assertConsistent(t)
		})
	}
}

func TestEditAuditsOnlyChangedRecords(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Submit(ctx, teacher, submitReq("s", rec("s1", StatusPresent), rec("s2", StatusAbsent))); err != nil {
		t.Fatal(err)
	}
	e.clock.Set(t0.Add(10 * time.Minute))
	notes := "  arrived with parent  "
	res, err := e.svc.Edit(ctx, teacher, editReq("e", "parent called",
		rec("s1", StatusPresent),
		RecordInput{StudentID: "s2", Status: StatusLate, Notes: &notes},
	))
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !res.EditedAt.Equal(t0.Add(10 * time.Minute)) {
		t.Fatalf("editedAt = %v", res.EditedAt)
	}

	audits := e.recordAudits(t)
	if len(audits) != 3 {
		t.Fatalf("record audits = %d, want 3", len(audits))
	}
	last := audits[2]
	if last.Action != ActionEdit || last.Reason == nil || *last.Reason != "parent called" || last.Before == nil {
		t.Fatalf("edit audit = %+v", last)
	}

	st, err := e.svc.State(ctx, teacher, "c1", "2024-01-15", SessionMorning)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range st.Records {
		if r.Student.ID == "s2" {
			if r.Notes == nil || *r.Notes != "arrived with parent" {
				t.Fatalf("notes not normalized: %v", r.Notes)
			}
			if r.LastEditedBy == nil || *r.LastEditedBy != "t1" {
				t.Fatalf("lastEditedBy = %v", r.LastEditedBy)
			}
			if !r.SubmittedAt.Equal(t0) {
				t.Fatalf("submittedAt moved to %v", r.SubmittedAt)
			}
		}
	}
	sum := e.assertConsistent(t)
	if sum.Present != 2 || sum.Late != 1 || sum.Absent != 0 {
		t.Fatalf("counts = %+v", sum.Counts)
	}
}

func TestLockUnlockTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Lock(ctx, admin, lockReq("EOD"))
	wantCode(t, err, CodeNotFound)

	if _, err := e.svc.Submit(ctx, teacher, submitReq("s", rec("s1", StatusPresent))); err != nil {
		t.Fatal(err)
	}

	_, err = e.svc.Lock(ctx, teacher, lockReq("EOD"))
	wantCode(t, err, CodeForbidden)
	_, err = e.svc.Unlock(ctx, admin, lockReq("oops"))
	wantCode(t, err, CodeConflict)

	if _, err := e.svc.Lock(ctx, admin, lockReq("EOD")); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	sum := e.assertConsistent(t)
	if sum.Status != SummaryLocked || !sum.IsLocked || sum.LockedBy == nil || *sum.LockedBy != "a1" {
		t.Fatalf("locked summary = %+v", sum)
	}
	if n := e.count(t, `SELECT COUNT(*) FROM attendance_snapshots WHERE is_locked = 0`); n != 0 {
		t.Fatalf("%d snapshots left unlocked", n)
	}
	_, err = e.svc.Lock(ctx, admin, lockReq("again"))
	wantCode(t, err, CodeConflict)

	if _, err := e.svc.Unlock(ctx, admin, lockReq("correction")); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	sum = e.assertConsistent(t)
	if sum.Status != SummarySynced || sum.IsLocked || sum.LockedBy != nil {
		t.Fatalf("unlocked summary = %+v", sum)
	}
	if n := e.count(t, `SELECT COUNT(*) FROM attendance_snapshots WHERE is_locked = 1`); n != 0 {
		t.Fatalf("%d snapshots still locked", n)
	}

	res, err := e.svc.Audit(ctx, admin, "c1", "2024-01-15", SessionMorning)
	if err != nil {
		t.Fatal(err)
	}
	var sessionEntries []AuditResponse
	for _, a := range res.Items {
		if a.EntityType == EntitySession {
			sessionEntries = append(sessionEntries, a)
		}
	}
	if len(sessionEntries) != 2 || sessionEntries[0].Action != ActionLock || sessionEntries[1].Action != ActionUnlock {
		t.Fatalf("session audit = %+v", sessionEntries)
	}
	if *sessionEntries[0].Reason != "EOD" {
		t.Fatalf("lock reason = %q", *sessionEntries[0].Reason)
	}
}

func TestLockExclusivity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Submit(ctx, teacher, submitReq("s", rec("s1", StatusPresent), rec("s2", StatusAbsent))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.Lock(ctx, admin, lockReq("EOD")); err != nil {
		t.Fatal(err)
	}

	_, err := e.svc.Submit(ctx, teacher, submitReq("s-2", rec("s1", StatusAbsent)))
	wantCode(t, err, CodeForbidden)
	_, err = e.svc.Edit(ctx, teacher, editReq("e-t", "fix", rec("s1", StatusAbsent)))
	wantCode(t, err, CodeForbidden)
	_, err = e.svc.Submit(ctx, admin, submitReq("s-admin", rec("s1", StatusAbsent)))
	wantCode(t, err, CodeForbidden)

	if _, err := e.svc.Edit(ctx, admin, editReq("e-a", "admin fix", rec("s1", StatusExcused))); err != nil {
		t.Fatalf("privileged edit while locked: %v", err)
	}
	sum := e.assertConsistent(t)
	if sum.Status != SummaryLocked || sum.Excused != 1 {
		t.Fatalf("summary after admin edit = %+v", sum)
	}
	// 管理者の修正後も行はロックされたまま
	if n := e.count(t, `SELECT COUNT(*) FROM attendance_snapshots WHERE is_locked = 0`); n != 0 {
		t.Fatalf("%d snapshots unlocked by edit", n)
	}
	audits := e.recordAudits(t)
	if last := audits[len(audits)-1]; last.ActorID != "a1" || last.Action != ActionEdit {
		t.Fatalf("admin edit not audited: %+v", last)
	}
}

// 2人のクラスで 提出 -> ロック -> 先生の編集は拒否 -> 管理者が LATE に修正
func TestTwoStudentScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Submit(ctx, teacher, submitReq("sub", rec("s1", StatusPresent), rec("s2", StatusAbsent))); err != nil {
		t.Fatal(err)
	}
	sum := e.assertConsistent(t)
	if sum.Total != 2 || sum.Present != 1 || sum.Absent != 1 || sum.Status != SummarySynced {
		t.Fatalf("after submit = %+v", sum)
	}

	if _, err := e.svc.Lock(ctx, admin, lockReq("EOD")); err != nil {
		t.Fatal(err)
	}
	_, err := e.svc.Edit(ctx, teacher, editReq("t-edit", "typo", rec("s2", StatusPresent)))
	wantCode(t, err, CodeForbidden)

	if _, err := e.svc.Edit(ctx, admin, editReq("a-edit", "arrived late", rec("s2", StatusLate))); err != nil {
		t.Fatal(err)
	}
	sum = e.assertConsistent(t)
	if sum.Present != 2 || sum.Late != 1 || sum.Absent != 0 || sum.Total != 2 {
		t.Fatalf("after admin edit = %+v", sum.Counts)
	}

	audits := e.recordAudits(t)
	var submits, edits int
	for _, a := range audits {
		switch a.Action {
		case ActionSubmit:
			submits++
		case ActionEdit:
			edits++
		}
	}
	if submits != 2 || edits != 1 {
		t.Fatalf("record audits submit=%d edit=%d, want 2 and 1", submits, edits)
	}
}

func TestStateCanEdit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	st, err := e.svc.State(ctx, teacher, "c1", "2024-01-15", SessionMorning)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != SummaryNotStarted || st.CanEdit || st.EditWindowEndsAt != nil || len(st.Records) != 0 {
		t.Fatalf("empty state = %+v", st)
	}

	if _, err := e.svc.Submit(ctx, teacher, submitReq("s",
		RecordInput{StudentID: "s2", Status: StatusPresent, EarlyLeave: &EarlyLeaveInput{Time: "11:30", Reason: "dentist"}},
		rec("s1", StatusAbsent),
	)); err != nil {
		t.Fatal(err)
	}
	st, _ = e.svc.State(ctx, teacher, "c1", "2024-01-15", SessionMorning)
	if !st.CanEdit || st.EditWindowEndsAt == nil || !st.EditWindowEndsAt.Equal(t0.Add(120*time.Minute)) {
		t.Fatalf("state after submit = %+v", st)
	}
	if st.Records[0].Student.ID != "s1" || st.Records[0].Student.Name != "Ani P" {
		t.Fatalf("records not ordered by name: %+v", st.Records)
	}
	if el := st.Records[1].EarlyLeave; el == nil || el.Time != "11:30" || el.Reason != "dentist" {
		t.Fatalf("early leave = %+v", el)
	}

	other, _ := e.svc.State(ctx, stranger, "c1", "2024-01-15", SessionMorning)
	if other.CanEdit {
		t.Fatal("unassigned teacher should not be able to edit")
	}

	e.clock.Set(t0.Add(3 * time.Hour))
	st, _ = e.svc.State(ctx, teacher, "c1", "2024-01-15", SessionMorning)
	if st.CanEdit {
		t.Fatal("canEdit after window")
	}
	st, _ = e.svc.State(ctx, admin, "c1", "2024-01-15", SessionMorning)
	if !st.CanEdit {
		t.Fatal("admin should always be able to edit a submitted session")
	}
}

func TestAuditRequiresPrivilege(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Audit(context.Background(), teacher, "c1", "2024-01-15", SessionMorning)
	wantCode(t, err, CodeForbidden)
}

type memCache struct {
	mu   sync.Mutex
	data map[string]ledgerEntry
	hits int
}

func (m *memCache) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if ok {
		m.hits++
		*dst.(*ledgerEntry) = e
	}
	return ok, nil
}

func (m *memCache) Set(_ context.Context, key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v.(ledgerEntry)
	return nil
}

func TestReplayServedFromCache(t *testing.T) {
	c := &memCache{data: map[string]ledgerEntry{}}
	e := newEnv(t, WithReplayCache(c))
	ctx := context.Background()
	req := submitReq("cached", rec("s1", StatusPresent))

	first, err := e.svc.Submit(ctx, teacher, req)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.data["cached"]; !ok {
		t.Fatal("accepted event not cached")
	}
	again, err := e.svc.Submit(ctx, teacher, req)
	if err != nil {
		t.Fatal(err)
	}
	if c.hits != 1 || again.EventID != first.EventID || !again.AlreadyProcessed {
		t.Fatalf("hits=%d again=%+v", c.hits, again)
	}
}

// MySQL の DATETIME(6) はマイクロ秒まで。初回の応答と台帳・キャッシュからの再送が同じ時刻を返すこと
func TestTimestampsKeepMicrosecondPrecision(t *testing.T) {
	c := &memCache{data: map[string]ledgerEntry{}}
	e := newEnv(t, WithReplayCache(c))
	ctx := context.Background()
	e.clock.Set(t0.Add(123456789 * time.Nanosecond))

	req := submitReq("t1:c1:2024-01-15:MORNING:SUBMIT:ns", rec("s1", StatusPresent))
	first, err := e.svc.Submit(ctx, teacher, req)
	if err != nil {
		t.Fatal(err)
	}
	if want := t0.Add(123456 * time.Microsecond); !first.SyncedAt.Equal(want) {
		t.Fatalf("syncedAt = %v, want %v", first.SyncedAt, want)
	}

	ev, err := e.svc.store.FindEvent(ctx, e.conn, req.IdempotencyKey)
	if err != nil || ev == nil {
		t.Fatalf("FindEvent = (%v, %v)", ev, err)
	}
	if !ev.CreatedAt.Equal(first.SyncedAt) {
		t.Fatalf("ledger created_at %v != response %v", ev.CreatedAt, first.SyncedAt)
	}
	if got := c.data[req.IdempotencyKey].CreatedAt; !got.Equal(first.SyncedAt) {
		t.Fatalf("cached created_at %v != response %v", got, first.SyncedAt)
	}

	// キャッシュを空にして台帳から返す
	delete(c.data, req.IdempotencyKey)
	again, err := e.svc.Submit(ctx, teacher, req)
	if err != nil {
		t.Fatal(err)
	}
	if !again.AlreadyProcessed || !again.SyncedAt.Equal(first.SyncedAt) {
		t.Fatalf("ledger replay = %+v, first = %+v", again, first)
	}

	if _, err := e.svc.Lock(ctx, admin, lockReq("EOD")); err != nil {
		t.Fatal(err)
	}
	sum := e.assertConsistent(t)
	if sum.LockedAt == nil || sum.LockedAt.Nanosecond()%1000 != 0 {
		t.Fatalf("lockedAt = %v", sum.LockedAt)
	}
}

// 別キーの同時 SUBMIT はサマリ行のロックで直列になる
func TestSubmitConcurrentDifferentKeys(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 偶数は s1、奇数は s2。同じ生徒には毎回同じ状態を送る
			r := rec("s1", StatusPresent)
			if i%2 == 1 {
				r = rec("s2", StatusAbsent)
			}
			key := "t1:c1:2024-01-15:MORNING:SUBMIT:" + string(rune('a'+i))
			res, err := e.svc.Submit(ctx, teacher, submitReq(key, r))
			if err == nil && res.AlreadyProcessed {
				t.Errorf("distinct key %s reported as replay", key)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	if c := e.count(t, `SELECT COUNT(*) FROM attendance_events`); c != n {
		t.Fatalf("events = %d, want %d", c, n)
	}
	// 変化したのは s1 と s2 の初回だけ
	if c := len(e.recordAudits(t)); c != 2 {
		t.Fatalf("record audits = %d, want 2", c)
	}
	sum := e.assertConsistent(t)
	if sum.Counts.Total != 2 || sum.Counts.Present != 1 || sum.Counts.Absent != 1 {
		t.Fatalf("counts = %+v", sum.Counts)
	}
	if sum.Status != SummarySynced || sum.SubmittedAt == nil {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestDashboard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.Submit(ctx, teacher, submitReq("d-1", rec("s1", StatusPresent), rec("s2", StatusLate))); err != nil {
		t.Fatal(err)
	}

	// 日付省略は今日（時計は t0）
	d, err := e.svc.Dashboard(ctx, teacher, "")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Date != "2024-01-15" || len(d.Classes) != 1 || d.Classes[0].ClassID != "c1" || len(d.Classes[0].Sessions) != 2 {
		t.Fatalf("dashboard = %+v", d)
	}
	am, pm := d.Classes[0].Sessions[0], d.Classes[0].Sessions[1]
	if am.Session != SessionMorning || am.Status != SummarySynced || am.Counts.Present != 2 || am.Counts.Late != 1 || !am.CanEdit {
		t.Fatalf("morning = %+v", am)
	}
	if pm.Session != SessionAfternoon || pm.Status != SummaryNotStarted || pm.CanEdit || pm.SubmittedAt != nil {
		t.Fatalf("afternoon = %+v", pm)
	}

	if d, err := e.svc.Dashboard(ctx, stranger, "2024-01-15"); err != nil || len(d.Classes) != 0 {
		t.Fatalf("stranger = (%+v, %v)", d, err)
	}
	if d, err := e.svc.Dashboard(ctx, admin, "2024-01-15"); err != nil || len(d.Classes) != 1 {
		t.Fatalf("admin = (%+v, %v)", d, err)
	}
	_, err = e.svc.Dashboard(ctx, teacher, "15/01/2024")
	wantCode(t, err, CodeInvalidArgument)
}
