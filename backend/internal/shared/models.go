// ============================================================================
// backend/internal/shared/models.go
// Shared data models for the grading engine
// ============================================================================

package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// Score Limits
// ============================================================================

// Marks and weights are stored as numeric(9,4): below 100000 with at most
// four decimal places. Every backend accepts anything inside that range.
const (
	ScoreLimit = 100000
	ScoreScale = 4
)

var scoreLimit = decimal.New(ScoreLimit, 0)

// ScoreProblem describes why d cannot be stored as a mark or weight, or returns "".
func ScoreProblem(d decimal.Decimal) string {
	switch {
	case d.IsNegative():
		return "must not be negative"
	case d.GreaterThanOrEqual(scoreLimit):
		return fmt.Sprintf("must be below %d", ScoreLimit)
	case !d.Equal(d.Round(ScoreScale)):
		return fmt.Sprintf("must have at most %d decimal places", ScoreScale)
	}
	return ""
}

// CheckScore returns a ValidationError for a value no store can hold
func CheckScore(field string, d decimal.Decimal) error {
	if problem := ScoreProblem(d); problem != "" {
		return NewValidationError(field, "%s", problem)
	}
	return nil
}

// ============================================================================
// Grading Models
// ============================================================================

// GradingComponent is an entry of the global component master list (e.g. "Midterm")
type GradingComponent struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SectionWeight is the percentage a component contributes to a section's final grade
type SectionWeight struct {
	SectionID   int64           `json:"section_id"`
	ComponentID int64           `json:"component_id"`
	Weight      decimal.Decimal `json:"weight"`
}

// ComponentMark is a raw score of one enrollment on one component.
// A nil Marks is an explicit "no mark".
type ComponentMark struct {
	ID           int64            `json:"id"`
	EnrollmentID int64            `json:"enrollment_id"`
	ComponentID  int64            `json:"component_id"`
	Marks        *decimal.Decimal `json:"marks"`
}

// GradeSource records which path wrote a final grade
type GradeSource string

const (
	SourceComputed GradeSource = "computed"
	SourceOverride GradeSource = "override"
)

// FinalGrade is the stored letter for one enrollment. It is never stored empty.
type FinalGrade struct {
	EnrollmentID int64       `json:"enrollment_id"`
	Letter       string      `json:"grade"`
	Source       GradeSource `json:"source"`
	UpdatedBy    string      `json:"updated_by,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// ============================================================================
// Directory Models (read-only here)
// ============================================================================

// Enrollment ties a student to a section
type Enrollment struct {
	ID         int64     `json:"id"`
	StudentID  int64     `json:"student_id"`
	SectionID  int64     `json:"section_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Student is the part of a student record the grading engine needs
type Student struct {
	UserID int64  `json:"user_id"`
	RollNo string `json:"roll_no"`
}

// ============================================================================
// Audit Models
// ============================================================================

// AuditEvent is one entry of the audit log
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"user_id"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ============================================================================
// Constants
// ============================================================================

// Roles
const (
	RoleAdmin      = "ADMIN"
	RoleInstructor = "INSTRUCTOR"
	RoleStudent    = "STUDENT"
)

// Settings keys and values
const (
	SettingMaintenance = "maintenance"
	MaintenanceOn      = "ON"
	MaintenanceOff     = "OFF"
)

// Audit actions
const (
	ActionMaintenanceToggle = "maintenance_toggle"
	ActionGradeFinalize     = "grade_finalize"
	ActionGradeOverride     = "grade_override"
	ActionGradeUndo         = "grade_undo"
	ActionMarksImport       = "marks_import"
	ActionWeightsReplace    = "weights_replace"
	ActionComponentCreate   = "component_create"
)

// Computed letters
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
	GradeD = "D"
	GradeF = "F"
	GradeI = "I" // Incomplete
	GradeW = "W" // Withdrawn
)

// OverrideLetters lists the letters an instructor may set directly, in display order
var OverrideLetters = []string{"A", "A-", "B+", "B", "B-", "C+", "C", "D", "F", GradeI, GradeW}

// IsValidGrade reports whether letter may be stored as a final grade
func IsValidGrade(letter string) bool {
	for _, l := range OverrideLetters {
		if l == letter {
			return true
		}
	}
	return false
}

// NormalizeRole upper-cases a role name for comparison
func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}
