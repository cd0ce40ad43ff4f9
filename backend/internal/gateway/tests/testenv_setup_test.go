package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"univ_erp/backend/internal/app"
	"univ_erp/backend/internal/auth"
	"univ_erp/backend/internal/gateway"
	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store/memstore"
)

const testSecret = "gateway-test-secret"

// Section 10 holds enrollments 101 and 102; section 11 holds 201.
const (
	sectionA     = 10
	sectionB     = 11
	enrollFirst  = 101
	enrollSecond = 102
	enrollOther  = 201
)

// TestEnv holds the router and the store behind it
type TestEnv struct {
	Router   http.Handler
	Store    *memstore.Store
	Services *app.Services
}

// setupGatewayTestEnv builds the full service stack over an in-memory store
func setupGatewayTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	cfg := &shared.ServiceConfig{
		ServiceName: "grading-test",
		Environment: "test",
		Storage:     shared.StorageConfig{Driver: shared.DriverMemory, Timeout: time.Second},
		Security:    shared.SecurityConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
		Grading:     shared.GradingConfig{UndoCapacity: 1},
		CORS: shared.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		},
	}

	s := memstore.New()
	ctx := context.Background()
	for _, name := range []string{"Quiz", "Midterm", "Final"} {
		_, err := s.CreateComponent(ctx, name)
		require.NoError(t, err)
	}
	s.AddEnrollment(shared.Enrollment{ID: enrollFirst, StudentID: 1, SectionID: sectionA})
	s.AddEnrollment(shared.Enrollment{ID: enrollSecond, StudentID: 2, SectionID: sectionA})
	s.AddEnrollment(shared.Enrollment{ID: enrollOther, StudentID: 3, SectionID: sectionB})
	s.AddStudent(shared.Student{UserID: 1, RollNo: "2024-001"})
	s.AddStudent(shared.Student{UserID: 2, RollNo: "2024-002"})

	svc := app.New(cfg, s)
	return &TestEnv{Router: gateway.SetupRoutes(svc), Store: s, Services: svc}
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	token, _, err := auth.GenerateToken(testSecret, shared.Caller{UserID: "u-" + role, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request through the router. A non-nil body that is not an
// io.Reader is JSON encoded.
func (env *TestEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		if _, raw := body.(io.Reader); !raw {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	rr := httptest.NewRecorder()
	env.Router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "body: %s", rr.Body.String())
	return resp
}

func (env *TestEnv) ctx(role string) context.Context {
	return shared.WithCaller(context.Background(), shared.Caller{UserID: "u-" + role, Role: role})
}
