package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/skillproof/skillproof-api/internal/api/http"
	"github.com/skillproof/skillproof-api/internal/assessment"
	auth "github.com/skillproof/skillproof-api/internal/auth/middleware"
	"github.com/skillproof/skillproof-api/internal/catalog"
	"github.com/skillproof/skillproof-api/internal/config"
	"github.com/skillproof/skillproof-api/internal/db"
	"github.com/skillproof/skillproof-api/internal/rbac"
	"github.com/skillproof/skillproof-api/internal/storage"
	"github.com/skillproof/skillproof-api/internal/sweep"
)

func main() {
	// Best effort; env vars win over the file.
	_ = godotenv.Load()

	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	catStore := catalog.NewSQLStore(dbh)
	sessStore := assessment.NewSQLStore(dbh)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	eng := assessment.NewEngine(sessStore, catStore, bs)
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh, cfg.AdminUser, cfg.AdminPassHash))
	r.Post("/auth/register", auth.RegisterHandler(authSvc, dbh))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, true))

		pr.Post("/auth/password", api.ChangePasswordHandler(dbh))

		// User administration
		pr.With(rbac.Require("users:manage")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("users:manage")).
			Put("/users/{userID}/role", api.AdminUpdateUserRoleHandler(dbh))

		// Catalog browsing
		pr.With(rbac.Require("catalog:view")).
			Get("/catalog/categories", api.ListCategoriesHandler(catStore))
		pr.With(rbac.Require("catalog:view")).
			Get("/catalog/categories/{categoryID}/sub-themes", api.ListSubThemesHandler(catStore))
		pr.With(rbac.Require("catalog:view")).
			Get("/catalog/questions", api.ListQuestionsHandler(catStore, cfg.CatalogDefaultActiveOnly))
		pr.With(rbac.Require("catalog:view")).
			Get("/catalog/questions/{questionID}", api.GetQuestionHandler(catStore))

		// Catalog management
		pr.With(rbac.Require("catalog:manage")).
			Post("/catalog/categories", api.UpsertCategoryHandler(catStore))
		pr.With(rbac.Require("catalog:manage")).
			Delete("/catalog/categories/{categoryID}", api.DeleteCategoryHandler(catStore))
		pr.With(rbac.Require("catalog:manage")).
			Post("/catalog/sub-themes", api.UpsertSubThemeHandler(catStore))
		pr.With(rbac.Require("catalog:manage")).
			Delete("/catalog/sub-themes/{subThemeID}", api.DeleteSubThemeHandler(catStore))
		pr.With(rbac.Require("catalog:manage")).
			Post("/catalog/questions", api.UpsertQuestionHandler(catStore))
		pr.With(rbac.Require("catalog:manage")).
			Delete("/catalog/questions/{questionID}", api.DeleteQuestionHandler(catStore))

		// Assessment flow
		pr.With(rbac.Require("assessment:start")).
			Post("/assessments", api.StartAssessmentHandler(eng))
		pr.With(rbac.RequireAny("assessment:view-own", "assessment:view-all")).
			Get("/assessments", api.ListAssessmentsHandler(eng))
		pr.With(rbac.Require("assessment:submit")).
			Post("/assessments/{sessionID}/answers", api.SubmitAnswerHandler(eng))
		pr.With(rbac.RequireAny("assessment:view-own", "assessment:view-all")).
			Get("/assessments/{sessionID}/progress", api.GetProgressHandler(eng))
		pr.With(rbac.Require("assessment:submit")).
			Post("/assessments/{sessionID}/complete", api.CompleteAssessmentHandler(eng))
		pr.With(rbac.Require("assessment:submit")).
			Post("/assessments/{sessionID}/abandon", api.AbandonAssessmentHandler(eng))

		// Reports
		pr.With(rbac.RequireAny("report:view-own", "report:view-all")).
			Get("/assessments/{sessionID}/report", api.GetReportHandler(eng))
		pr.With(rbac.RequireAny("report:view-own", "report:view-all")).
			Post("/assessments/{sessionID}/reports", api.SaveReportHandler(eng))
		pr.With(rbac.RequireAny("report:view-own", "report:view-all")).
			Get("/reports/{reportID}", api.GetSavedReportHandler(eng))
	})

	sweeper := sweep.New(eng, cfg.SweepInterval, cfg.SessionIdleTimeout)
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	case <-stop:
		log.Printf("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
