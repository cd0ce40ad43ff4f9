// Package sqlstore keeps grading state in PostgreSQL through gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

var (
	_ store.Store           = (*Store)(nil)
	_ store.DirectorySeeder = (*Store)(nil)
)

// Store implements store.Store on a gorm connection
type Store struct {
	db *gorm.DB
}

// New wraps an open connection
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL, tunes the pool and migrates the schema
func Open(ctx context.Context, cfg shared.PostgresConfig) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxIdleTime(cfg.MaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Println("Successfully connected to PostgreSQL")
	return s, nil
}

// Migrate creates or updates every table the store uses
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&ComponentModel{},
		&WeightModel{},
		&MarkModel{},
		&GradeModel{},
		&SettingModel{},
		&EnrollmentModel{},
		&StudentModel{},
		&AuditLogModel{},
	); err != nil {
		return shared.NewStorageError("migrate", err)
	}
	err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS uq_grading_components_name ON grading_components (lower(name))").Error
	return shared.NewStorageError("migrate component index", err)
}

// Close releases the pool
func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ============================================================================
// Components
// ============================================================================

func (s *Store) ListComponents(ctx context.Context) ([]shared.GradingComponent, error) {
	var rows []ComponentModel
	if err := s.db.WithContext(ctx).Order("component_id ASC").Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("list components", err)
	}
	out := make([]shared.GradingComponent, 0, len(rows))
	for _, r := range rows {
		out = append(out, shared.GradingComponent{ID: r.ComponentID, Name: r.Name})
	}
	return out, nil
}

func (s *Store) FindComponent(ctx context.Context, id int64) (shared.GradingComponent, bool, error) {
	var row ComponentModel
	err := s.db.WithContext(ctx).Where("component_id = ?", id).Take(&row).Error
	if notFound(err) {
		return shared.GradingComponent{}, false, nil
	}
	if err != nil {
		return shared.GradingComponent{}, false, shared.NewStorageError("find component", err)
	}
	return shared.GradingComponent{ID: row.ComponentID, Name: row.Name}, true, nil
}

func (s *Store) CreateComponent(ctx context.Context, name string) (shared.GradingComponent, error) {
	row := ComponentModel{Name: name}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.GradingComponent{}, shared.NewValidationError("name", "component %q already exists", name)
	}
	if err != nil {
		return shared.GradingComponent{}, shared.NewStorageError("create component", err)
	}
	return shared.GradingComponent{ID: row.ComponentID, Name: row.Name}, nil
}

// ============================================================================
// Weights
// ============================================================================

func (s *Store) WeightsForSection(ctx context.Context, sectionID int64) ([]shared.SectionWeight, error) {
	var rows []WeightModel
	err := s.db.WithContext(ctx).
		Where("section_id = ?", sectionID).
		Order("component_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, shared.NewStorageError("list weights", err)
	}
	out := make([]shared.SectionWeight, 0, len(rows))
	for _, r := range rows {
		out = append(out, shared.SectionWeight{SectionID: r.SectionID, ComponentID: r.ComponentID, Weight: r.Weight})
	}
	return out, nil
}

func (s *Store) UpsertWeight(ctx context.Context, w shared.SectionWeight) error {
	return shared.NewStorageError("upsert weight", upsertWeight(s.db.WithContext(ctx), w))
}

func upsertWeight(tx *gorm.DB, w shared.SectionWeight) error {
	row := WeightModel{SectionID: w.SectionID, ComponentID: w.ComponentID, Weight: w.Weight}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "section_id"}, {Name: "component_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"weight"}),
	}).Create(&row).Error
}

func (s *Store) DeleteWeightsForSection(ctx context.Context, sectionID int64) (int64, error) {
	res := s.db.WithContext(ctx).Where("section_id = ?", sectionID).Delete(&WeightModel{})
	if res.Error != nil {
		return 0, shared.NewStorageError("delete weights", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) ReplaceWeights(ctx context.Context, sectionID int64, weights []shared.SectionWeight) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("section_id = ?", sectionID).Delete(&WeightModel{}).Error; err != nil {
			return err
		}
		for _, w := range weights {
			w.SectionID = sectionID
			if err := upsertWeight(tx, w); err != nil {
				return err
			}
		}
		return nil
	})
	return shared.NewStorageError("replace weights", err)
}

// ============================================================================
// Marks
// ============================================================================

func (s *Store) FindMark(ctx context.Context, enrollmentID, componentID int64) (shared.ComponentMark, bool, error) {
	var row MarkModel
	err := s.db.WithContext(ctx).
		Where("enrollment_id = ? AND component_id = ?", enrollmentID, componentID).
		Take(&row).Error
	if notFound(err) {
		return shared.ComponentMark{}, false, nil
	}
	if err != nil {
		return shared.ComponentMark{}, false, shared.NewStorageError("find mark", err)
	}
	return row.toModel(), true, nil
}

func (s *Store) MarksForEnrollment(ctx context.Context, enrollmentID int64) ([]shared.ComponentMark, error) {
	var rows []MarkModel
	err := s.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("component_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, shared.NewStorageError("list marks", err)
	}
	out := make([]shared.ComponentMark, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) UpsertMark(ctx context.Context, enrollmentID, componentID int64, marks *decimal.Decimal) error {
	row := MarkModel{EnrollmentID: enrollmentID, ComponentID: componentID, Marks: marks}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "component_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"marks"}),
	}).Create(&row).Error
	return shared.NewStorageError("upsert mark", err)
}

func (m MarkModel) toModel() shared.ComponentMark {
	return shared.ComponentMark{ID: m.ID, EnrollmentID: m.EnrollmentID, ComponentID: m.ComponentID, Marks: m.Marks}
}

// ============================================================================
// Final grades
// ============================================================================

func (s *Store) FindGrade(ctx context.Context, enrollmentID int64) (shared.FinalGrade, bool, error) {
	var row GradeModel
	err := s.db.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).Take(&row).Error
	if notFound(err) {
		return shared.FinalGrade{}, false, nil
	}
	if err != nil {
		return shared.FinalGrade{}, false, shared.NewStorageError("find grade", err)
	}
	return shared.FinalGrade{
		EnrollmentID: row.EnrollmentID,
		Letter:       row.Grade,
		Source:       shared.GradeSource(row.Source),
		UpdatedBy:    row.UpdatedBy,
		UpdatedAt:    row.UpdatedAt,
	}, true, nil
}

func (s *Store) UpsertGrade(ctx context.Context, g shared.FinalGrade) error {
	if strings.TrimSpace(g.Letter) == "" {
		return s.DeleteGrade(ctx, g.EnrollmentID)
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now().UTC()
	}

	row := GradeModel{
		EnrollmentID: g.EnrollmentID,
		Grade:        g.Letter,
		Source:       string(g.Source),
		UpdatedBy:    g.UpdatedBy,
		UpdatedAt:    g.UpdatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"grade", "source", "updated_by", "updated_at"}),
	}).Create(&row).Error
	return shared.NewStorageError("upsert grade", err)
}

func (s *Store) DeleteGrade(ctx context.Context, enrollmentID int64) error {
	err := s.db.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).Delete(&GradeModel{}).Error
	return shared.NewStorageError("delete grade", err)
}

// ============================================================================
// Settings
// ============================================================================

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var row SettingModel
	err := s.db.WithContext(ctx).Where("setting_key = ?", key).Take(&row).Error
	if notFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, shared.NewStorageError("get setting "+key, err)
	}
	return row.Value, true, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value, updatedBy string) error {
	row := SettingModel{Key: key, Value: value, UpdatedBy: updatedBy, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"setting_value", "updated_by", "updated_at"}),
	}).Create(&row).Error
	return shared.NewStorageError("put setting "+key, err)
}

// ============================================================================
// Directories
// ============================================================================

func (s *Store) EnrollmentsForSection(ctx context.Context, sectionID int64) ([]shared.Enrollment, error) {
	var rows []EnrollmentModel
	err := s.db.WithContext(ctx).
		Where("section_id = ?", sectionID).
		Order("enrollment_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, shared.NewStorageError("list enrollments", err)
	}
	out := make([]shared.Enrollment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) FindEnrollment(ctx context.Context, enrollmentID int64) (shared.Enrollment, bool, error) {
	var row EnrollmentModel
	err := s.db.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).Take(&row).Error
	if notFound(err) {
		return shared.Enrollment{}, false, nil
	}
	if err != nil {
		return shared.Enrollment{}, false, shared.NewStorageError("find enrollment", err)
	}
	return row.toModel(), true, nil
}

func (m EnrollmentModel) toModel() shared.Enrollment {
	return shared.Enrollment{ID: m.EnrollmentID, StudentID: m.StudentID, SectionID: m.SectionID, EnrolledAt: m.EnrolledAt}
}

func (s *Store) FindStudent(ctx context.Context, userID int64) (shared.Student, bool, error) {
	var row StudentModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if notFound(err) {
		return shared.Student{}, false, nil
	}
	if err != nil {
		return shared.Student{}, false, shared.NewStorageError("find student", err)
	}
	return shared.Student{UserID: row.UserID, RollNo: row.RollNo}, true, nil
}

func (s *Store) SeedEnrollment(ctx context.Context, e shared.Enrollment) error {
	row := EnrollmentModel{EnrollmentID: e.ID, StudentID: e.StudentID, SectionID: e.SectionID, EnrolledAt: e.EnrolledAt}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return shared.NewStorageError("seed enrollment", err)
}

func (s *Store) SeedStudent(ctx context.Context, st shared.Student) error {
	row := StudentModel{UserID: st.UserID, RollNo: st.RollNo}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return shared.NewStorageError("seed student", err)
}

// ============================================================================
// Audit
// ============================================================================

func (s *Store) RecordAudit(ctx context.Context, event shared.AuditEvent) error {
	row := AuditLogModel{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		UserID:    event.UserID,
		Action:    event.Action,
		Resource:  event.Resource,
		Details:   event.Details,
	}
	return shared.NewStorageError("record audit", s.db.WithContext(ctx).Create(&row).Error)
}
