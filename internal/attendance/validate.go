package attendance

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

var clockTimeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

var customValidations = map[string]validator.Func{
	"session_type": func(fl validator.FieldLevel) bool {
		return SessionType(fl.Field().String()).Valid()
	},
	"attendance_status": func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	},
	"iso_date": func(fl validator.FieldLevel) bool {
		_, err := time.ParseInLocation(DateLayout, fl.Field().String(), time.UTC)
		return err == nil
	},
	"clock_time": func(fl validator.FieldLevel) bool {
		return clockTimeRe.MatchString(fl.Field().String())
	},
}

// RegisterValidators は gin の binding エンジンにカスタムタグを登録する
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not validator/v10")
	}
	return register(v)
}

func register(v *validator.Validate) error {
	for tag, fn := range customValidations {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}

var (
	svcValidator     *validator.Validate
	svcValidatorOnce sync.Once
)

// Service 直呼び出し用。handler と同じ binding タグで検証する
func structValidator() *validator.Validate {
	svcValidatorOnce.Do(func() {
		v := validator.New()
		v.SetTagName("binding")
		if err := register(v); err != nil {
			panic(err)
		}
		svcValidator = v
	})
	return svcValidator
}

func validateStruct(in any) error {
	if err := structValidator().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ErrInvalid(fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
		return ErrInvalid(err.Error())
	}
	return nil
}

// normalizeText: 前後空白を落として NFC に揃える。空なら nil
func normalizeText(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(norm.NFC.String(*p))
	if s == "" {
		return nil
	}
	return &s
}

// toRecords は入力を検証済みの Record に変換する（生徒IDの重複は不可）
func toRecords(in []RecordInput) ([]Record, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]Record, 0, len(in))
	for i, r := range in {
		id := strings.TrimSpace(r.StudentID)
		if id == "" {
			return nil, ErrInvalid(fmt.Sprintf("records[%d].studentId is required", i))
		}
		if _, dup := seen[id]; dup {
			return nil, ErrInvalid(fmt.Sprintf("duplicate studentId %q", id))
		}
		seen[id] = struct{}{}

		rec := Record{
			StudentID: id,
			Status:    r.Status,
			Notes:     normalizeText(r.Notes),
		}
		if r.EarlyLeave != nil {
			reason := normalizeText(&r.EarlyLeave.Reason)
			if reason == nil {
				return nil, ErrInvalid(fmt.Sprintf("records[%d].earlyLeave.reason is required", i))
			}
			t := r.EarlyLeave.Time
			rec.EarlyLeaveTime = &t
			rec.EarlyLeaveReason = reason
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseKey(classID, date string, session SessionType) (SessionKey, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return SessionKey{}, ErrInvalid("classId is required")
	}
	d, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return SessionKey{}, ErrInvalid("date must be YYYY-MM-DD")
	}
	if !session.Valid() {
		return SessionKey{}, ErrInvalid("session must be MORNING or AFTERNOON")
	}
	return SessionKey{ClassID: classID, Session: session, Date: d.Format(DateLayout)}, nil
}

func parseClientTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, ErrInvalid("clientCreatedAt must be RFC3339")
	}
	return t.UTC(), nil
}
