package roster

import "time"

// 名簿は別サービスの持ち物。ここでは参照と開発用シードだけ
const StateActive = "ACTIVE"

type Class struct {
	ClassID        string  `json:"classId" yaml:"class_id"`
	Name           string  `json:"name" yaml:"name"`
	Section        *string `json:"section,omitempty" yaml:"section"`
	LifecycleState string  `json:"lifecycleState" yaml:"lifecycle_state"`
}

type Student struct {
	StudentID      string `json:"id" yaml:"student_id"`
	ClassID        string `json:"classId" yaml:"class_id"`
	AdmissionNo    string `json:"admissionNo" yaml:"admission_no"`
	FirstName      string `json:"firstName" yaml:"first_name"`
	LastName       string `json:"lastName" yaml:"last_name"`
	LifecycleState string `json:"lifecycleState" yaml:"lifecycle_state"`
}

type Assignment struct {
	TeacherID string `yaml:"teacher_id"`
	ClassID   string `yaml:"class_id"`
	IsPrimary bool   `yaml:"is_primary"`
}

// Fixture は dev 用シード（config/seed.yaml）
type Fixture struct {
	Classes     []Class      `yaml:"classes"`
	Students    []Student    `yaml:"students"`
	Assignments []Assignment `yaml:"assignments"`
}

// GET /classes/:classId/students
type StudentsResponse struct {
	ClassID  string    `json:"classId"`
	Students []Student `json:"students"`
	CachedAt time.Time `json:"cachedAt"`
}

// GET /classes
type ClassesResponse struct {
	Items []Class `json:"items"`
}
