package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"univ_erp/backend/internal/app"
	"univ_erp/backend/internal/auth"
	"univ_erp/backend/internal/gateway/handlers"
	"univ_erp/backend/internal/gateway/util"
	"univ_erp/backend/internal/shared"
)

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(svc *app.Services) *chi.Mux {
	r := chi.NewRouter()

	// 1. Global Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	corsCfg := svc.Config.CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsCfg.AllowedOrigins,
		AllowedMethods:   corsCfg.AllowedMethods,
		AllowedHeaders:   corsCfg.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           corsCfg.MaxAge,
	}))

	// 2. Initialize Handlers
	authHandler := &handlers.AuthHandler{}
	adminHandler := &handlers.AdminHandler{Gate: svc.Gate, Components: svc.Components}
	weightsHandler := &handlers.WeightsHandler{Weights: svc.Weights}
	enrollmentHandler := &handlers.EnrollmentHandler{Marks: svc.Marks, Engine: svc.Engine}
	gradeHandler := &handlers.GradeHandler{Engine: svc.Engine, Ledger: svc.Ledger}
	reconcileHandler := &handlers.ReconcileHandler{Reconciler: svc.Reconciler}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.Gate.State(r.Context())
		if err != nil {
			util.WriteError(w, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"status":  "ok",
			"state":   state,
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	// 3. Define Routes (all require a valid token)
	r.Route("/api", func(r chi.Router) {
		r.Use(CallerMiddleware(svc.Config.Security.JWTSecret))

		r.Get("/auth/validate", authHandler.ValidateToken)

		r.Get("/components", adminHandler.ListComponents)
		r.Post("/components", adminHandler.CreateComponent)

		r.Route("/sections/{section_id}", func(r chi.Router) {
			r.Get("/weights", weightsHandler.GetWeights)
			r.Put("/weights", weightsHandler.ReplaceWeights)
			r.Delete("/weights", weightsHandler.ClearWeights)
			r.Put("/weights/{component_id}", weightsHandler.SetWeight)

			r.Get("/sheet", gradeHandler.GetSectionSheet)
			r.Post("/finalize", gradeHandler.FinalizeSection)

			r.Get("/marks/export", reconcileHandler.ExportMarks)
			r.Post("/marks/import", reconcileHandler.ImportMarks)
		})

		r.Route("/enrollments/{enrollment_id}", func(r chi.Router) {
			r.Get("/marks", enrollmentHandler.GetMarks)
			r.Put("/marks/{component_id}", enrollmentHandler.SetMark)
			r.Get("/grade", enrollmentHandler.GetGrade)
			r.Put("/grade", enrollmentHandler.SetGrade)
			r.Post("/grade/finalize", enrollmentHandler.Finalize)
		})

		r.Post("/grades/undo", gradeHandler.Undo)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/maintenance", adminHandler.GetMaintenance)
			r.Put("/maintenance", adminHandler.SetMaintenance)
		})
	})

	return r
}

// CallerMiddleware verifies the bearer token and attaches the caller it names
// to the request context.
func CallerMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Extract Token
			tokenStr, err := util.ExtractToken(r)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			// 2. Verify locally
			caller, err := auth.ParseToken(secret, tokenStr)
			if err != nil {
				if errors.Is(err, auth.ErrNoSecret) {
					util.WriteJSONError(w, http.StatusUnauthorized, "Token verification is not configured")
					return
				}
				util.WriteJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			// 3. Inject Caller into Context
			next.ServeHTTP(w, r.WithContext(shared.WithCaller(r.Context(), caller)))
		})
	}
}
