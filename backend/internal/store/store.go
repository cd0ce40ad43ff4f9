// Package store defines the persistence contracts of the grading engine.
// Every backend implements each operation as exactly one method; absent
// records are reported with a found flag rather than an error, and every
// failure is returned as a *shared.StorageError.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/shared"
)

// ComponentRepository owns the global grading component master list
type ComponentRepository interface {
	ListComponents(ctx context.Context) ([]shared.GradingComponent, error)
	FindComponent(ctx context.Context, id int64) (shared.GradingComponent, bool, error)
	CreateComponent(ctx context.Context, name string) (shared.GradingComponent, error)
}

// WeightRepository owns section component weights
type WeightRepository interface {
	WeightsForSection(ctx context.Context, sectionID int64) ([]shared.SectionWeight, error)
	UpsertWeight(ctx context.Context, w shared.SectionWeight) error
	DeleteWeightsForSection(ctx context.Context, sectionID int64) (int64, error)
	// ReplaceWeights clears the section and writes weights as one atomic unit.
	ReplaceWeights(ctx context.Context, sectionID int64, weights []shared.SectionWeight) error
}

// MarkRepository owns per-enrollment component marks
type MarkRepository interface {
	FindMark(ctx context.Context, enrollmentID, componentID int64) (shared.ComponentMark, bool, error)
	MarksForEnrollment(ctx context.Context, enrollmentID int64) ([]shared.ComponentMark, error)
	UpsertMark(ctx context.Context, enrollmentID, componentID int64, marks *decimal.Decimal) error
}

// GradeRepository owns stored final letter grades
type GradeRepository interface {
	FindGrade(ctx context.Context, enrollmentID int64) (shared.FinalGrade, bool, error)
	// UpsertGrade deletes the row instead when g.Letter is empty.
	UpsertGrade(ctx context.Context, g shared.FinalGrade) error
	DeleteGrade(ctx context.Context, enrollmentID int64) error
}

// SettingsRepository is the key/value settings table
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value, updatedBy string) error
}

// EnrollmentDirectory resolves enrollments. It is read-only for the grading engine.
type EnrollmentDirectory interface {
	EnrollmentsForSection(ctx context.Context, sectionID int64) ([]shared.Enrollment, error)
	FindEnrollment(ctx context.Context, enrollmentID int64) (shared.Enrollment, bool, error)
}

// StudentDirectory resolves student records
type StudentDirectory interface {
	FindStudent(ctx context.Context, userID int64) (shared.Student, bool, error)
}

// AuditLog records grading events
type AuditLog interface {
	RecordAudit(ctx context.Context, event shared.AuditEvent) error
}

// Store bundles every repository a backend provides
type Store interface {
	ComponentRepository
	WeightRepository
	MarkRepository
	GradeRepository
	SettingsRepository
	EnrollmentDirectory
	StudentDirectory
	AuditLog
	Close(ctx context.Context) error
}

// DirectorySeeder loads directory rows owned by other services. Only the
// seeder and integration tests use it.
type DirectorySeeder interface {
	SeedEnrollment(ctx context.Context, e shared.Enrollment) error
	SeedStudent(ctx context.Context, st shared.Student) error
}
