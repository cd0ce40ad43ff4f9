package tests

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"univ_erp/backend/internal/gateway/util"
	"univ_erp/backend/internal/shared"
)

func TestGateway_Maintenance(t *testing.T) {
	env := setupGatewayTestEnv(t)
	admin := tokenFor(t, shared.RoleAdmin)
	instructor := tokenFor(t, shared.RoleInstructor)

	t.Run("Instructor Cannot Toggle", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/api/admin/maintenance", instructor, map[string]bool{"enabled": true})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("Enabled Is Required", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/api/admin/maintenance", admin, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Admin Turns It On", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/api/admin/maintenance", admin, map[string]bool{"enabled": true})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decodeBody(t, rr)
		assert.Equal(t, "MAINTENANCE", resp["state"])
		assert.Equal(t, true, resp["maintenance"])
	})

	t.Run("Writes Refused With Maintenance Code", func(t *testing.T) {
		writes := []struct {
			method, path string
			body         interface{}
		}{
			{http.MethodPut, "/api/enrollments/101/marks/1", map[string]string{"marks": "9"}},
			{http.MethodPut, "/api/sections/10/weights/1", map[string]string{"weight": "50"}},
			{http.MethodPut, "/api/enrollments/101/grade", map[string]string{"grade": "A"}},
			{http.MethodPost, "/api/enrollments/101/grade/finalize", nil},
			{http.MethodPost, "/api/sections/10/marks/import", strings.NewReader("EnrollmentID,StudentID,RollNo,Quiz\n101,1,x,5\n")},
			{http.MethodPost, "/api/grades/undo", nil},
		}
		for _, w := range writes {
			rr := env.do(t, w.method, w.path, instructor, w.body)
			if w.path == "/api/grades/undo" {
				// nothing recorded yet, so the ledger answers before the gate
				assert.Equal(t, http.StatusConflict, rr.Code, w.path)
				continue
			}
			require.Equal(t, http.StatusLocked, rr.Code, "%s %s: %s", w.method, w.path, rr.Body.String())
			resp := decodeBody(t, rr)
			assert.Equal(t, util.CodeMaintenance, resp["code"])
			assert.Equal(t, shared.MaintenanceMessage, resp["message"])
		}
	})

	t.Run("Reads Still Served", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/sections/10/sheet", instructor, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Admin Writes Through", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/api/enrollments/101/marks/1", admin, map[string]string{"marks": "9"})
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	t.Run("Admin Turns It Off", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/api/admin/maintenance", admin, map[string]bool{"enabled": false})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "RUNNING", decodeBody(t, rr)["state"])

		rr = env.do(t, http.MethodGet, "/api/admin/maintenance", instructor, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, false, decodeBody(t, rr)["maintenance"])
	})
}

func TestGateway_Reconcile(t *testing.T) {
	env := setupGatewayTestEnv(t)
	instructor := tokenFor(t, shared.RoleInstructor)

	t.Run("Import Raw CSV", func(t *testing.T) {
		sheet := "EnrollmentID,StudentID,RollNo,Quiz,Midterm\n" +
			"101,1,2024-001,8,abc\n" +
			"201,3,,5,5\n"
		rr := env.do(t, http.MethodPost, "/api/sections/10/marks/import", instructor, strings.NewReader(sheet))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		resp := decodeBody(t, rr)
		report := resp["report"].(map[string]interface{})
		assert.Equal(t, float64(1), report["cells_written"])
		assert.Equal(t, float64(1), report["rows_skipped"])
		messages := resp["messages"].([]interface{})
		require.Len(t, messages, 2)
		assert.Equal(t, "Line 2, col 5: invalid numeric 'abc'", messages[0])
		assert.Equal(t, "Line 3: Enrollment 201 does not belong to section 10", messages[1])
	})

	t.Run("Import Multipart Upload", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "marks.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte("EnrollmentID,StudentID,RollNo,Midterm\n102,2,2024-002,66.5\n"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/sections/10/marks/import", &body)
		req.Header.Set("Authorization", "Bearer "+instructor)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		env.Router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		report := decodeBody(t, rr)["report"].(map[string]interface{})
		assert.Equal(t, float64(1), report["cells_written"])
	})

	t.Run("Multipart Without File", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("note", "no file"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/sections/10/marks/import", &body)
		req.Header.Set("Authorization", "Bearer "+instructor)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		env.Router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Empty Import", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/sections/10/marks/import", instructor, strings.NewReader(""))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Export", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/sections/10/marks/export", instructor, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "section-10-marks.csv")

		want := "EnrollmentID,StudentID,RollNo,Quiz,Midterm,Final\n" +
			"101,1,2024-001,8,,\n" +
			"102,2,2024-002,,66.5,\n"
		assert.Equal(t, want, rr.Body.String())
	})

	t.Run("Export Storage Failure Is JSON", func(t *testing.T) {
		env.Store.SetFault("EnrollmentsForSection", assert.AnError)
		defer env.Store.SetFault("EnrollmentsForSection", nil)

		rr := env.do(t, http.MethodGet, "/api/sections/10/marks/export", instructor, nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	})
}
