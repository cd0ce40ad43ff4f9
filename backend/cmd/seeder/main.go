package main

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/app"
	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

// Sections of the current term
const (
	SectionCS101   = int64(1001)
	SectionMATH101 = int64(1002)
)

// StudentSeed is one student and the sections they sit in
type StudentSeed struct {
	UserID   int64
	RollNo   string
	Sections []int64
}

// WeightSeed assigns a percentage to a component name in a section
type WeightSeed struct {
	SectionID int64
	Component string
	Weight    string
}

var (
	componentSeeds = []string{"Quiz", "Assignment", "Midterm", "Final"}

	studentSeeds = []StudentSeed{
		{UserID: 1, RollNo: "2024-001", Sections: []int64{SectionCS101, SectionMATH101}},
		{UserID: 2, RollNo: "2024-002", Sections: []int64{SectionCS101}},
		{UserID: 3, RollNo: "2024-003", Sections: []int64{SectionCS101, SectionMATH101}},
		{UserID: 4, RollNo: "2024-004", Sections: []int64{SectionMATH101}},
	}

	weightSeeds = []WeightSeed{
		{SectionCS101, "Quiz", "10"},
		{SectionCS101, "Assignment", "20"},
		{SectionCS101, "Midterm", "30"},
		{SectionCS101, "Final", "40"},
		// MATH101 is deliberately left short of 100 so the warning path is visible.
		{SectionMATH101, "Midterm", "30"},
		{SectionMATH101, "Final", "40"},
	}
)

func main() {
	log.Println("Starting Grading Database Seeder...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := shared.LoadServiceConfig("seeder")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := shared.ValidateServiceConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	ctx = shared.WithCaller(ctx, shared.Caller{UserID: "seeder", Role: shared.RoleAdmin})

	svc, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Storage.Driver, err)
	}
	defer svc.Close(context.Background())

	directory, ok := svc.Store.(store.DirectorySeeder)
	if !ok {
		log.Fatalf("Storage driver %s cannot seed directory rows", cfg.Storage.Driver)
	}

	// --- 1. Components ---
	components := seedComponents(ctx, svc)

	// --- 2. Students and Enrollments ---
	enrollments := seedDirectory(ctx, directory)

	// --- 3. Weights ---
	seedWeights(ctx, svc, components)

	// --- 4. Marks ---
	seedMarks(ctx, svc, components, enrollments)

	if _, err := svc.Gate.SetState(ctx, false); err != nil {
		log.Fatalf("Failed to reset maintenance flag: %v", err)
	}
	log.Println("Seeding complete.")
}

func seedComponents(ctx context.Context, svc *app.Services) map[string]int64 {
	for _, name := range componentSeeds {
		_, err := svc.Components.Create(ctx, name)
		if err != nil && !errors.Is(err, shared.ErrValidation) {
			log.Fatalf("Failed to create component %s: %v", name, err)
		}
	}

	list, err := svc.Components.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list components: %v", err)
	}
	byName := make(map[string]int64, len(list))
	for _, c := range list {
		byName[strings.ToLower(c.Name)] = c.ID
	}
	log.Printf("Seeded %d components", len(list))
	return byName
}

// seedDirectory returns enrollment ids keyed by section. Enrollment ids are
// derived from the section and student so reruns upsert the same rows.
func seedDirectory(ctx context.Context, directory store.DirectorySeeder) map[int64][]int64 {
	enrollments := map[int64][]int64{}
	enrolledAt := time.Now().AddDate(0, -2, 0)

	for _, st := range studentSeeds {
		if err := directory.SeedStudent(ctx, shared.Student{UserID: st.UserID, RollNo: st.RollNo}); err != nil {
			log.Fatalf("Failed to seed student %s: %v", st.RollNo, err)
		}
		for _, sectionID := range st.Sections {
			id := sectionID*100 + st.UserID
			err := directory.SeedEnrollment(ctx, shared.Enrollment{
				ID:         id,
				StudentID:  st.UserID,
				SectionID:  sectionID,
				EnrolledAt: enrolledAt,
			})
			if err != nil {
				log.Fatalf("Failed to seed enrollment %d: %v", id, err)
			}
			enrollments[sectionID] = append(enrollments[sectionID], id)
		}
	}
	log.Printf("Seeded %d students", len(studentSeeds))
	return enrollments
}

func seedWeights(ctx context.Context, svc *app.Services, components map[string]int64) {
	bySection := map[int64]map[int64]decimal.Decimal{}
	for _, w := range weightSeeds {
		if bySection[w.SectionID] == nil {
			bySection[w.SectionID] = map[int64]decimal.Decimal{}
		}
		bySection[w.SectionID][components[strings.ToLower(w.Component)]] = decimal.RequireFromString(w.Weight)
	}
	for sectionID, weights := range bySection {
		if err := svc.Weights.ReplaceWeights(ctx, sectionID, weights); err != nil {
			log.Fatalf("Failed to seed weights for section %d: %v", sectionID, err)
		}
	}
	log.Printf("Seeded weights for %d sections", len(bySection))
}

// seedMarks fills CS101 on a 0-100 scale and MATH101 on a 0-10 scale so both
// normalization paths have data.
func seedMarks(ctx context.Context, svc *app.Services, components map[string]int64, enrollments map[int64][]int64) {
	cs := []string{"92", "85", "78", "88"}
	for i, enrollmentID := range enrollments[SectionCS101] {
		marks := map[int64]*decimal.Decimal{}
		for j, name := range componentSeeds {
			m := decimal.RequireFromString(cs[(i+j)%len(cs)])
			marks[components[strings.ToLower(name)]] = &m
		}
		if err := svc.Marks.SetMarks(ctx, enrollmentID, marks); err != nil {
			log.Fatalf("Failed to seed marks for enrollment %d: %v", enrollmentID, err)
		}
	}

	math := []string{"8", "6.5", "9.5"}
	for i, enrollmentID := range enrollments[SectionMATH101] {
		mid := decimal.RequireFromString(math[i%len(math)])
		fin := decimal.RequireFromString(math[(i+1)%len(math)])
		marks := map[int64]*decimal.Decimal{
			components["midterm"]: &mid,
			components["final"]:   &fin,
		}
		if err := svc.Marks.SetMarks(ctx, enrollmentID, marks); err != nil {
			log.Fatalf("Failed to seed marks for enrollment %d: %v", enrollmentID, err)
		}
	}
	log.Println("Seeded marks")
}
