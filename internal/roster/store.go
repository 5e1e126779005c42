package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/db"
)

type Store struct {
	conn *sql.DB
	d    db.Dialect
}

func NewStore(conn *sql.DB, d db.Dialect) *Store { return &Store{conn: conn, d: d} }

func (s *Store) ClassExists(ctx context.Context, classID string) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx, `
	SELECT 1 FROM classes WHERE class_id = ? AND lifecycle_state = ? LIMIT 1`, classID, StateActive,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) IsAssigned(ctx context.Context, teacherID, classID string) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx, `
	SELECT 1 FROM teacher_class_assignments WHERE teacher_id = ? AND class_id = ? LIMIT 1`, teacherID, classID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ActiveStudentIDs(ctx context.Context, classID string) (map[string]struct{}, error) {
	students, err := s.ListActiveStudents(ctx, classID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(students))
	for _, st := range students {
		out[st.StudentID] = struct{}{}
	}
	return out, nil
}

func (s *Store) ListActiveStudents(ctx context.Context, classID string) ([]Student, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT student_id, class_id, admission_no, first_name, last_name, lifecycle_state
	FROM students
	WHERE class_id = ? AND lifecycle_state = ?
	ORDER BY first_name ASC, student_id ASC`, classID, StateActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Student{}
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.StudentID, &st.ClassID, &st.AdmissionNo, &st.FirstName, &st.LastName, &st.LifecycleState); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListClasses: teacherID が空なら全件（管理者用）
func (s *Store) ListClasses(ctx context.Context, teacherID string) ([]Class, error) {
	q := `SELECT c.class_id, c.name, c.section, c.lifecycle_state FROM classes c`
	var args []any
	if teacherID != "" {
		q += ` JOIN teacher_class_assignments a ON a.class_id = c.class_id WHERE a.teacher_id = ? AND c.lifecycle_state = ?`
		args = append(args, teacherID, StateActive)
	} else {
		q += ` WHERE c.lifecycle_state = ?`
		args = append(args, StateActive)
	}
	q += ` ORDER BY c.name ASC, c.class_id ASC`

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Class{}
	for rows.Next() {
		var (
			c       Class
			section sql.NullString
		)
		if err := rows.Scan(&c.ClassID, &c.Name, &section, &c.LifecycleState); err != nil {
			return nil, err
		}
		if section.Valid {
			v := section.String
			c.Section = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ===== dev シード =====

func LoadFixture(path string) (Fixture, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return f, nil
}

// Seed は何度流しても同じ状態になる（upsert）
func (s *Store) Seed(ctx context.Context, f Fixture) error {
	return db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, c := range f.Classes {
			state := orActive(c.LifecycleState)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO classes (class_id, name, section, lifecycle_state) VALUES (?, ?, ?, ?)`+
					s.d.Upsert([]string{"class_id"}, []string{"name", "section", "lifecycle_state"}),
				c.ClassID, c.Name, c.Section, state); err != nil {
				return fmt.Errorf("seed class %s: %w", c.ClassID, err)
			}
		}
		for _, st := range f.Students {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO students (student_id, class_id, admission_no, first_name, last_name, lifecycle_state) VALUES (?, ?, ?, ?, ?, ?)`+
					s.d.Upsert([]string{"student_id"}, []string{"class_id", "admission_no", "first_name", "last_name", "lifecycle_state"}),
				st.StudentID, st.ClassID, st.AdmissionNo, st.FirstName, st.LastName, orActive(st.LifecycleState)); err != nil {
				return fmt.Errorf("seed student %s: %w", st.StudentID, err)
			}
		}
		for _, a := range f.Assignments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO teacher_class_assignments (teacher_id, class_id, is_primary) VALUES (?, ?, ?)`+
					s.d.Upsert([]string{"teacher_id", "class_id"}, []string{"is_primary"}),
				a.TeacherID, a.ClassID, a.IsPrimary); err != nil {
				return fmt.Errorf("seed assignment %s/%s: %w", a.TeacherID, a.ClassID, err)
			}
		}
		return nil
	})
}

func orActive(s string) string {
	if s == "" {
		return StateActive
	}
	return s
}
