package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"univ_erp/backend/internal/shared"
)

type settingDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedBy string    `bson:"updated_by,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type enrollmentDoc struct {
	ID         int64     `bson:"_id"`
	StudentID  int64     `bson:"student_id"`
	SectionID  int64     `bson:"section_id"`
	EnrolledAt time.Time `bson:"enrolled_at"`
}

type studentDoc struct {
	UserID int64  `bson:"_id"`
	RollNo string `bson:"roll_no"`
}

type auditDoc struct {
	ID        string                 `bson:"_id"`
	Timestamp time.Time              `bson:"timestamp"`
	UserID    string                 `bson:"user_id"`
	Action    string                 `bson:"action"`
	Resource  string                 `bson:"resource"`
	Details   map[string]interface{} `bson:"details,omitempty"`
}

// ============================================================================
// Settings
// ============================================================================

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var doc settingDoc
	err := s.settingsCol.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, shared.NewStorageError("get setting "+key, err)
	}
	return doc.Value, true, nil
}

// PutSetting upserts the value; the collection is created on first write
func (s *Store) PutSetting(ctx context.Context, key, value, updatedBy string) error {
	_, err := s.settingsCol.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value, "updated_by": updatedBy, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return shared.NewStorageError("put setting "+key, err)
}

// ============================================================================
// Directories
// ============================================================================

func (s *Store) EnrollmentsForSection(ctx context.Context, sectionID int64) ([]shared.Enrollment, error) {
	cursor, err := s.enrollmentsCol.Find(ctx, bson.M{"section_id": sectionID},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, shared.NewStorageError("list enrollments", err)
	}
	defer cursor.Close(ctx)

	var docs []enrollmentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, shared.NewStorageError("decode enrollments", err)
	}
	out := make([]shared.Enrollment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *Store) FindEnrollment(ctx context.Context, enrollmentID int64) (shared.Enrollment, bool, error) {
	var doc enrollmentDoc
	err := s.enrollmentsCol.FindOne(ctx, bson.M{"_id": enrollmentID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return shared.Enrollment{}, false, nil
	}
	if err != nil {
		return shared.Enrollment{}, false, shared.NewStorageError("find enrollment", err)
	}
	return doc.toModel(), true, nil
}

func (d enrollmentDoc) toModel() shared.Enrollment {
	return shared.Enrollment{ID: d.ID, StudentID: d.StudentID, SectionID: d.SectionID, EnrolledAt: d.EnrolledAt}
}

func (s *Store) FindStudent(ctx context.Context, userID int64) (shared.Student, bool, error) {
	var doc studentDoc
	err := s.studentsCol.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return shared.Student{}, false, nil
	}
	if err != nil {
		return shared.Student{}, false, shared.NewStorageError("find student", err)
	}
	return shared.Student{UserID: doc.UserID, RollNo: doc.RollNo}, true, nil
}

// ============================================================================
// Audit
// ============================================================================

func (s *Store) RecordAudit(ctx context.Context, event shared.AuditEvent) error {
	doc := auditDoc{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		UserID:    event.UserID,
		Action:    event.Action,
		Resource:  event.Resource,
		Details:   event.Details,
	}
	_, err := s.auditCol.InsertOne(ctx, doc)
	return shared.NewStorageError("record audit", err)
}

// SeedEnrollment inserts or replaces a directory row. Used by the seeder and tests.
func (s *Store) SeedEnrollment(ctx context.Context, e shared.Enrollment) error {
	doc := enrollmentDoc{ID: e.ID, StudentID: e.StudentID, SectionID: e.SectionID, EnrolledAt: e.EnrolledAt}
	_, err := s.enrollmentsCol.ReplaceOne(ctx, bson.M{"_id": e.ID}, doc, options.Replace().SetUpsert(true))
	return shared.NewStorageError("seed enrollment", err)
}

// SeedStudent inserts or replaces a student row
func (s *Store) SeedStudent(ctx context.Context, st shared.Student) error {
	_, err := s.studentsCol.ReplaceOne(ctx, bson.M{"_id": st.UserID}, studentDoc{UserID: st.UserID, RollNo: st.RollNo},
		options.Replace().SetUpsert(true))
	return shared.NewStorageError("seed student", err)
}
