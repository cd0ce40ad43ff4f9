package mongostore

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"univ_erp/backend/internal/shared"
)

type componentDoc struct {
	ID        int64  `bson:"_id"`
	Name      string `bson:"name"`
	NameLower string `bson:"name_lower"`
}

type weightDoc struct {
	SectionID   int64                `bson:"section_id"`
	ComponentID int64                `bson:"component_id"`
	Weight      primitive.Decimal128 `bson:"weight"`
}

type markDoc struct {
	ID           int64                 `bson:"_id"`
	EnrollmentID int64                 `bson:"enrollment_id"`
	ComponentID  int64                 `bson:"component_id"`
	Marks        *primitive.Decimal128 `bson:"marks"`
}

type gradeDoc struct {
	EnrollmentID int64     `bson:"_id"`
	Grade        string    `bson:"grade"`
	Source       string    `bson:"source"`
	UpdatedBy    string    `bson:"updated_by,omitempty"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// ============================================================================
// Components
// ============================================================================

func (s *Store) ListComponents(ctx context.Context) ([]shared.GradingComponent, error) {
	cursor, err := s.componentsCol.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, shared.NewStorageError("list components", err)
	}
	defer cursor.Close(ctx)

	var docs []componentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, shared.NewStorageError("decode components", err)
	}
	out := make([]shared.GradingComponent, 0, len(docs))
	for _, d := range docs {
		out = append(out, shared.GradingComponent{ID: d.ID, Name: d.Name})
	}
	return out, nil
}

func (s *Store) FindComponent(ctx context.Context, id int64) (shared.GradingComponent, bool, error) {
	var doc componentDoc
	err := s.componentsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return shared.GradingComponent{}, false, nil
	}
	if err != nil {
		return shared.GradingComponent{}, false, shared.NewStorageError("find component", err)
	}
	return shared.GradingComponent{ID: doc.ID, Name: doc.Name}, true, nil
}

func (s *Store) CreateComponent(ctx context.Context, name string) (shared.GradingComponent, error) {
	id, err := s.nextID(ctx, ColComponents)
	if err != nil {
		return shared.GradingComponent{}, shared.NewStorageError("create component", err)
	}

	doc := componentDoc{ID: id, Name: name, NameLower: strings.ToLower(name)}
	if _, err := s.componentsCol.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return shared.GradingComponent{}, shared.NewValidationError("name", "component %q already exists", name)
		}
		return shared.GradingComponent{}, shared.NewStorageError("create component", err)
	}
	return shared.GradingComponent{ID: id, Name: name}, nil
}

// ============================================================================
// Weights
// ============================================================================

func (s *Store) WeightsForSection(ctx context.Context, sectionID int64) ([]shared.SectionWeight, error) {
	cursor, err := s.weightsCol.Find(ctx, bson.M{"section_id": sectionID},
		options.Find().SetSort(bson.D{{Key: "component_id", Value: 1}}))
	if err != nil {
		return nil, shared.NewStorageError("list weights", err)
	}
	defer cursor.Close(ctx)

	var docs []weightDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, shared.NewStorageError("decode weights", err)
	}
	out := make([]shared.SectionWeight, 0, len(docs))
	for _, d := range docs {
		w, err := shared.FromDecimal128(d.Weight)
		if err != nil {
			return nil, shared.NewStorageError("decode weight", err)
		}
		out = append(out, shared.SectionWeight{SectionID: d.SectionID, ComponentID: d.ComponentID, Weight: w})
	}
	return out, nil
}

func (s *Store) UpsertWeight(ctx context.Context, w shared.SectionWeight) error {
	return s.upsertWeight(ctx, w)
}

func (s *Store) upsertWeight(ctx context.Context, w shared.SectionWeight) error {
	weight, err := shared.ToDecimal128(w.Weight)
	if err != nil {
		return shared.NewStorageError("encode weight", err)
	}
	_, err = s.weightsCol.UpdateOne(ctx,
		bson.M{"section_id": w.SectionID, "component_id": w.ComponentID},
		bson.M{"$set": bson.M{"weight": weight}},
		options.Update().SetUpsert(true),
	)
	return shared.NewStorageError("upsert weight", err)
}

func (s *Store) DeleteWeightsForSection(ctx context.Context, sectionID int64) (int64, error) {
	res, err := s.weightsCol.DeleteMany(ctx, bson.M{"section_id": sectionID})
	if err != nil {
		return 0, shared.NewStorageError("delete weights", err)
	}
	return res.DeletedCount, nil
}

// ReplaceWeights runs the clear and the writes in one transaction
func (s *Store) ReplaceWeights(ctx context.Context, sectionID int64, weights []shared.SectionWeight) error {
	err := shared.WithTransaction(ctx, s.client, func(sessCtx mongo.SessionContext) error {
		if _, err := s.weightsCol.DeleteMany(sessCtx, bson.M{"section_id": sectionID}); err != nil {
			return err
		}
		for _, w := range weights {
			w.SectionID = sectionID
			if err := s.upsertWeight(sessCtx, w); err != nil {
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
	var doc markDoc
	err := s.marksCol.FindOne(ctx, bson.M{"enrollment_id": enrollmentID, "component_id": componentID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return shared.ComponentMark{}, false, nil
	}
	if err != nil {
		return shared.ComponentMark{}, false, shared.NewStorageError("find mark", err)
	}
	m, err := doc.toModel()
	if err != nil {
		return shared.ComponentMark{}, false, err
	}
	return m, true, nil
}

func (s *Store) MarksForEnrollment(ctx context.Context, enrollmentID int64) ([]shared.ComponentMark, error) {
	cursor, err := s.marksCol.Find(ctx, bson.M{"enrollment_id": enrollmentID},
		options.Find().SetSort(bson.D{{Key: "component_id", Value: 1}}))
	if err != nil {
		return nil, shared.NewStorageError("list marks", err)
	}
	defer cursor.Close(ctx)

	var out []shared.ComponentMark
	for cursor.Next(ctx) {
		var doc markDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, shared.NewStorageError("decode mark", err)
		}
		m, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := cursor.Err(); err != nil {
		return nil, shared.NewStorageError("list marks", err)
	}
	return out, nil
}

// UpsertMark updates the existing row or inserts one with a fresh id. A
// concurrent insert of the same pair lands on the unique index and the retry
// updates it.
func (s *Store) UpsertMark(ctx context.Context, enrollmentID, componentID int64, marks *decimal.Decimal) error {
	var value interface{}
	if marks != nil {
		v, err := shared.ToDecimal128(*marks)
		if err != nil {
			return shared.NewStorageError("encode mark", err)
		}
		value = v
	}

	filter := bson.M{"enrollment_id": enrollmentID, "component_id": componentID}
	update := bson.M{"$set": bson.M{"marks": value}}

	res, err := s.marksCol.UpdateOne(ctx, filter, update)
	if err != nil {
		return shared.NewStorageError("update mark", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	id, err := s.nextID(ctx, ColMarks)
	if err != nil {
		return shared.NewStorageError("upsert mark", err)
	}
	update["$setOnInsert"] = bson.M{"_id": id}
	_, err = s.marksCol.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		_, err = s.marksCol.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"marks": value}})
	}
	return shared.NewStorageError("upsert mark", err)
}

func (d markDoc) toModel() (shared.ComponentMark, error) {
	m := shared.ComponentMark{ID: d.ID, EnrollmentID: d.EnrollmentID, ComponentID: d.ComponentID}
	if d.Marks != nil {
		v, err := shared.FromDecimal128(*d.Marks)
		if err != nil {
			return shared.ComponentMark{}, shared.NewStorageError("decode mark", err)
		}
		m.Marks = &v
	}
	return m, nil
}

// ============================================================================
// Final grades
// ============================================================================

func (s *Store) FindGrade(ctx context.Context, enrollmentID int64) (shared.FinalGrade, bool, error) {
	var doc gradeDoc
	err := s.gradesCol.FindOne(ctx, bson.M{"_id": enrollmentID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return shared.FinalGrade{}, false, nil
	}
	if err != nil {
		return shared.FinalGrade{}, false, shared.NewStorageError("find grade", err)
	}
	return shared.FinalGrade{
		EnrollmentID: doc.EnrollmentID,
		Letter:       doc.Grade,
		Source:       shared.GradeSource(doc.Source),
		UpdatedBy:    doc.UpdatedBy,
		UpdatedAt:    doc.UpdatedAt,
	}, true, nil
}

// UpsertGrade deletes the row when the letter is empty
func (s *Store) UpsertGrade(ctx context.Context, g shared.FinalGrade) error {
	if strings.TrimSpace(g.Letter) == "" {
		return s.DeleteGrade(ctx, g.EnrollmentID)
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now().UTC()
	}

	doc := gradeDoc{
		EnrollmentID: g.EnrollmentID,
		Grade:        g.Letter,
		Source:       string(g.Source),
		UpdatedBy:    g.UpdatedBy,
		UpdatedAt:    g.UpdatedAt,
	}
	_, err := s.gradesCol.ReplaceOne(ctx, bson.M{"_id": g.EnrollmentID}, doc, options.Replace().SetUpsert(true))
	return shared.NewStorageError("upsert grade", err)
}

func (s *Store) DeleteGrade(ctx context.Context, enrollmentID int64) error {
	_, err := s.gradesCol.DeleteOne(ctx, bson.M{"_id": enrollmentID})
	return shared.NewStorageError("delete grade", err)
}
