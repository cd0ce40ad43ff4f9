// Package memstore is a mutex-guarded in-memory implementation of store.Store.
// It backs unit tests and the memory storage driver.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

var (
	_ store.Store           = (*Store)(nil)
	_ store.DirectorySeeder = (*Store)(nil)
)

type markKey struct {
	enrollmentID int64
	componentID  int64
}

// Store holds all grading state in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	components  map[int64]shared.GradingComponent
	weights     map[int64]map[int64]decimal.Decimal // section -> component -> weight
	marks       map[markKey]shared.ComponentMark
	grades      map[int64]shared.FinalGrade
	settings    map[string]string
	enrollments map[int64]shared.Enrollment
	students    map[int64]shared.Student
	audit       []shared.AuditEvent

	nextComponentID int64
	nextMarkID      int64

	faults map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		components:  map[int64]shared.GradingComponent{},
		weights:     map[int64]map[int64]decimal.Decimal{},
		marks:       map[markKey]shared.ComponentMark{},
		grades:      map[int64]shared.FinalGrade{},
		settings:    map[string]string{},
		enrollments: map[int64]shared.Enrollment{},
		students:    map[int64]shared.Student{},
		faults:      map[string]error{},
	}
}

// ============================================================================
// Seeding and fault injection
// ============================================================================

// AddEnrollment seeds the enrollment directory.
func (s *Store) AddEnrollment(e shared.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.ID] = e
}

// AddStudent seeds the student directory.
func (s *Store) AddStudent(st shared.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.UserID] = st
}

// SeedEnrollment is AddEnrollment for callers holding a store.DirectorySeeder.
func (s *Store) SeedEnrollment(ctx context.Context, e shared.Enrollment) error {
	s.AddEnrollment(e)
	return nil
}

// SeedStudent is AddStudent for callers holding a store.DirectorySeeder.
func (s *Store) SeedStudent(ctx context.Context, st shared.Student) error {
	s.AddStudent(st)
	return nil
}

// SetFault makes every later call of the named method fail with err.
// A nil err clears the fault.
func (s *Store) SetFault(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// AuditEvents returns a copy of the recorded audit trail.
func (s *Store) AuditEvents() []shared.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]shared.AuditEvent(nil), s.audit...)
}

// fault must be called with the lock held.
func (s *Store) fault(method string) error {
	if err, ok := s.faults[method]; ok {
		return shared.NewStorageError(method, err)
	}
	return nil
}

// ============================================================================
// Components
// ============================================================================

func (s *Store) ListComponents(ctx context.Context) ([]shared.GradingComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("ListComponents"); err != nil {
		return nil, err
	}

	out := make([]shared.GradingComponent, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindComponent(ctx context.Context, id int64) (shared.GradingComponent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindComponent"); err != nil {
		return shared.GradingComponent{}, false, err
	}
	c, ok := s.components[id]
	return c, ok, nil
}

func (s *Store) CreateComponent(ctx context.Context, name string) (shared.GradingComponent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateComponent"); err != nil {
		return shared.GradingComponent{}, err
	}

	for _, c := range s.components {
		if strings.EqualFold(c.Name, name) {
			return shared.GradingComponent{}, shared.NewValidationError("name", "component %q already exists", name)
		}
	}
	s.nextComponentID++
	c := shared.GradingComponent{ID: s.nextComponentID, Name: name}
	s.components[c.ID] = c
	return c, nil
}

// ============================================================================
// Weights
// ============================================================================

func (s *Store) WeightsForSection(ctx context.Context, sectionID int64) ([]shared.SectionWeight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("WeightsForSection"); err != nil {
		return nil, err
	}

	out := make([]shared.SectionWeight, 0, len(s.weights[sectionID]))
	for componentID, w := range s.weights[sectionID] {
		out = append(out, shared.SectionWeight{SectionID: sectionID, ComponentID: componentID, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out, nil
}

func (s *Store) UpsertWeight(ctx context.Context, w shared.SectionWeight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertWeight"); err != nil {
		return err
	}
	s.putWeight(w)
	return nil
}

func (s *Store) putWeight(w shared.SectionWeight) {
	section, ok := s.weights[w.SectionID]
	if !ok {
		section = map[int64]decimal.Decimal{}
		s.weights[w.SectionID] = section
	}
	section[w.ComponentID] = w.Weight
}

func (s *Store) DeleteWeightsForSection(ctx context.Context, sectionID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteWeightsForSection"); err != nil {
		return 0, err
	}
	n := int64(len(s.weights[sectionID]))
	delete(s.weights, sectionID)
	return n, nil
}

func (s *Store) ReplaceWeights(ctx context.Context, sectionID int64, weights []shared.SectionWeight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ReplaceWeights"); err != nil {
		return err
	}
	delete(s.weights, sectionID)
	for _, w := range weights {
		w.SectionID = sectionID
		s.putWeight(w)
	}
	return nil
}

// ============================================================================
// Marks
// ============================================================================

func (s *Store) FindMark(ctx context.Context, enrollmentID, componentID int64) (shared.ComponentMark, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindMark"); err != nil {
		return shared.ComponentMark{}, false, err
	}
	m, ok := s.marks[markKey{enrollmentID, componentID}]
	return copyMark(m), ok, nil
}

func (s *Store) MarksForEnrollment(ctx context.Context, enrollmentID int64) ([]shared.ComponentMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("MarksForEnrollment"); err != nil {
		return nil, err
	}

	var out []shared.ComponentMark
	for k, m := range s.marks {
		if k.enrollmentID == enrollmentID {
			out = append(out, copyMark(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out, nil
}

func (s *Store) UpsertMark(ctx context.Context, enrollmentID, componentID int64, marks *decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertMark"); err != nil {
		return err
	}

	key := markKey{enrollmentID, componentID}
	m, ok := s.marks[key]
	if !ok {
		s.nextMarkID++
		m = shared.ComponentMark{ID: s.nextMarkID, EnrollmentID: enrollmentID, ComponentID: componentID}
	}
	m.Marks = nil
	if marks != nil {
		v := *marks
		m.Marks = &v
	}
	s.marks[key] = m
	return nil
}

func copyMark(m shared.ComponentMark) shared.ComponentMark {
	if m.Marks != nil {
		v := *m.Marks
		m.Marks = &v
	}
	return m
}

// ============================================================================
// Grades
// ============================================================================

func (s *Store) FindGrade(ctx context.Context, enrollmentID int64) (shared.FinalGrade, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindGrade"); err != nil {
		return shared.FinalGrade{}, false, err
	}
	g, ok := s.grades[enrollmentID]
	return g, ok, nil
}

func (s *Store) UpsertGrade(ctx context.Context, g shared.FinalGrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertGrade"); err != nil {
		return err
	}
	if strings.TrimSpace(g.Letter) == "" {
		delete(s.grades, g.EnrollmentID)
		return nil
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now().UTC()
	}
	s.grades[g.EnrollmentID] = g
	return nil
}

func (s *Store) DeleteGrade(ctx context.Context, enrollmentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DeleteGrade"); err != nil {
		return err
	}
	delete(s.grades, enrollmentID)
	return nil
}

// ============================================================================
// Settings
// ============================================================================

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("GetSetting"); err != nil {
		return "", false, err
	}
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("PutSetting"); err != nil {
		return err
	}
	s.settings[key] = value
	return nil
}

// ============================================================================
// Directories
// ============================================================================

func (s *Store) EnrollmentsForSection(ctx context.Context, sectionID int64) ([]shared.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("EnrollmentsForSection"); err != nil {
		return nil, err
	}

	var out []shared.Enrollment
	for _, e := range s.enrollments {
		if e.SectionID == sectionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindEnrollment(ctx context.Context, enrollmentID int64) (shared.Enrollment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindEnrollment"); err != nil {
		return shared.Enrollment{}, false, err
	}
	e, ok := s.enrollments[enrollmentID]
	return e, ok, nil
}

func (s *Store) FindStudent(ctx context.Context, userID int64) (shared.Student, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault("FindStudent"); err != nil {
		return shared.Student{}, false, err
	}
	st, ok := s.students[userID]
	return st, ok, nil
}

// ============================================================================
// Audit
// ============================================================================

func (s *Store) RecordAudit(ctx context.Context, event shared.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RecordAudit"); err != nil {
		return err
	}
	s.audit = append(s.audit, event)
	return nil
}

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error { return nil }
