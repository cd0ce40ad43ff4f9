// ============================================================================
// backend/internal/store/mongostore/mongostore.go
// MongoDB implementation of the grading store
// ============================================================================

package mongostore

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

var (
	_ store.Store           = (*Store)(nil)
	_ store.DirectorySeeder = (*Store)(nil)
)

// Collection names
const (
	ColComponents  = "grading_components"
	ColWeights     = "section_component_weights"
	ColMarks       = "component_marks"
	ColGrades      = "final_grades"
	ColSettings    = "settings"
	ColEnrollments = "enrollments"
	ColStudents    = "students"
	ColAuditLogs   = "audit_logs"
	ColCounters    = "counters"
)

// Store keeps grading state in MongoDB. Numeric values are stored as Decimal128.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	componentsCol  *mongo.Collection
	weightsCol     *mongo.Collection
	marksCol       *mongo.Collection
	gradesCol      *mongo.Collection
	settingsCol    *mongo.Collection
	enrollmentsCol *mongo.Collection
	studentsCol    *mongo.Collection
	auditCol       *mongo.Collection
	countersCol    *mongo.Collection
}

// New creates a Store on an open database
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:         client,
		db:             db,
		componentsCol:  db.Collection(ColComponents),
		weightsCol:     db.Collection(ColWeights),
		marksCol:       db.Collection(ColMarks),
		gradesCol:      db.Collection(ColGrades),
		settingsCol:    db.Collection(ColSettings),
		enrollmentsCol: db.Collection(ColEnrollments),
		studentsCol:    db.Collection(ColStudents),
		auditCol:       db.Collection(ColAuditLogs),
		countersCol:    db.Collection(ColCounters),
	}
}

// Open connects with the given config, ensures indexes and returns the store
func Open(ctx context.Context, cfg *shared.MongoConfig) (*Store, error) {
	client, db, err := shared.ConnectMongoDB(cfg)
	if err != nil {
		return nil, err
	}
	s := New(client, db)
	if err := s.EnsureIndexes(ctx); err != nil {
		shared.DisconnectMongoDB(client)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique keys the grading data relies on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.componentsCol: {
			{Keys: bson.D{{Key: "name_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.weightsCol: {
			{Keys: bson.D{{Key: "section_id", Value: 1}, {Key: "component_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.marksCol: {
			{Keys: bson.D{{Key: "enrollment_id", Value: 1}, {Key: "component_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.enrollmentsCol: {
			{Keys: bson.D{{Key: "section_id", Value: 1}}},
		},
		s.auditCol: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}

	for col, models := range indexes {
		if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
			return shared.NewStorageError("create indexes on "+col.Name(), err)
		}
	}
	log.Printf("[MongoStore] Indexes ensured on database %s", s.db.Name())
	return nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return shared.DisconnectMongoDB(s.client)
}

// nextID allocates the next value of a named sequence
func (s *Store) nextID(ctx context.Context, sequence string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.countersCol.FindOneAndUpdate(ctx,
		bson.M{"_id": sequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", sequence, err)
	}
	return counter.Seq, nil
}
