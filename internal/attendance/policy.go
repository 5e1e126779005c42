package attendance

import (
	"strings"
	"time"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/auth"
)

// Policy はロックと編集期限のルール
type Policy struct {
	EditWindow time.Duration
	privileged map[string]struct{}
}

func NewPolicy(editWindow time.Duration, privilegedRoles []string) Policy {
	p := Policy{EditWindow: editWindow, privileged: make(map[string]struct{}, len(privilegedRoles))}
	for _, r := range privilegedRoles {
		p.privileged[strings.ToUpper(strings.TrimSpace(r))] = struct{}{}
	}
	return p
}

func (p Policy) IsPrivileged(a auth.Actor) bool {
	_, ok := p.privileged[strings.ToUpper(a.Role)]
	return ok
}

// CheckSubmit: ロック中は権限に関係なく SUBMIT 不可（管理者の修正は EDIT で行う）
func (p Policy) CheckSubmit(_ auth.Actor, sum Summary) error {
	if sum.IsLocked {
		return ErrForbidden("session is locked")
	}
	return nil
}

// CheckEdit: 未提出は NotFound。一般ユーザはロック中と期限切れが Forbidden
func (p Policy) CheckEdit(a auth.Actor, sum Summary, now time.Time) error {
	if sum.SubmittedAt == nil {
		return ErrNotFound("attendance has not been submitted for this session")
	}
	if p.IsPrivileged(a) {
		return nil
	}
	if sum.IsLocked {
		return ErrForbidden("session is locked")
	}
	if !now.Before(sum.SubmittedAt.Add(p.EditWindow)) {
		return ErrForbidden("edit window has expired")
	}
	return nil
}

// WindowEndsAt は未提出なら nil
func (p Policy) WindowEndsAt(sum Summary) *time.Time {
	if sum.SubmittedAt == nil {
		return nil
	}
	end := sum.SubmittedAt.Add(p.EditWindow)
	return &end
}

// CanEdit は表示用（GET state の canEdit）
func (p Policy) CanEdit(a auth.Actor, sum Summary, now time.Time) bool {
	return p.CheckEdit(a, sum, now) == nil
}
