package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ComponentModel struct {
	ComponentID int64  `gorm:"primaryKey;autoIncrement;column:component_id"`
	Name        string `gorm:"type:varchar(120);not null;column:name"`
}

func (ComponentModel) TableName() string { return "grading_components" }

type WeightModel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement;column:id"`
	SectionID   int64           `gorm:"not null;uniqueIndex:uq_section_component;column:section_id"`
	ComponentID int64           `gorm:"not null;uniqueIndex:uq_section_component;column:component_id"`
	Weight      decimal.Decimal `gorm:"type:numeric(9,4);not null;column:weight"`
}

func (WeightModel) TableName() string { return "section_grade_weights" }

type MarkModel struct {
	ID           int64            `gorm:"primaryKey;autoIncrement;column:id"`
	EnrollmentID int64            `gorm:"not null;uniqueIndex:uq_enrollment_component;column:enrollment_id"`
	ComponentID  int64            `gorm:"not null;uniqueIndex:uq_enrollment_component;column:component_id"`
	Marks        *decimal.Decimal `gorm:"type:numeric(9,4);column:marks"`
}

func (MarkModel) TableName() string { return "component_marks" }

type GradeModel struct {
	GradeID      int64     `gorm:"primaryKey;autoIncrement;column:grade_id"`
	EnrollmentID int64     `gorm:"not null;uniqueIndex;column:enrollment_id"`
	Grade        string    `gorm:"type:varchar(4);not null;column:grade"`
	Source       string    `gorm:"type:varchar(16);not null;default:computed;column:source"`
	UpdatedBy    string    `gorm:"type:varchar(64);column:updated_by"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;not null;column:updated_at"`
}

func (GradeModel) TableName() string { return "grades" }

type SettingModel struct {
	Key       string    `gorm:"primaryKey;type:varchar(64);column:setting_key"`
	Value     string    `gorm:"type:varchar(255);not null;column:setting_value"`
	UpdatedBy string    `gorm:"type:varchar(64);column:updated_by"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;column:updated_at"`
}

func (SettingModel) TableName() string { return "settings" }

// Directory tables are owned by the enrollment and user services; they are
// migrated here only so a standalone database works.
type EnrollmentModel struct {
	EnrollmentID int64     `gorm:"primaryKey;column:enrollment_id"`
	StudentID    int64     `gorm:"not null;column:student_id"`
	SectionID    int64     `gorm:"not null;index;column:section_id"`
	EnrolledAt   time.Time `gorm:"type:timestamptz;column:enrolled_at"`
}

func (EnrollmentModel) TableName() string { return "enrollments" }

type StudentModel struct {
	UserID int64  `gorm:"primaryKey;column:user_id"`
	RollNo string `gorm:"type:varchar(32);column:roll_no"`
}

func (StudentModel) TableName() string { return "students" }

type AuditLogModel struct {
	ID        string            `gorm:"primaryKey;type:varchar(64);column:id"`
	Timestamp time.Time         `gorm:"type:timestamptz;not null;index;column:timestamp"`
	UserID    string            `gorm:"type:varchar(64);column:user_id"`
	Action    string            `gorm:"type:varchar(64);not null;column:action"`
	Resource  string            `gorm:"type:varchar(128);column:resource"`
	Details   datatypes.JSONMap `gorm:"type:jsonb;column:details"`
}

func (AuditLogModel) TableName() string { return "audit_logs" }
