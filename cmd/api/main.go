package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/finum/finum/internal/analytics"
	"github.com/finum/finum/internal/api/handlers"
	"github.com/finum/finum/internal/api/middleware"
	"github.com/finum/finum/internal/fx"
	"github.com/finum/finum/internal/importer"
	infraBQ "github.com/finum/finum/internal/infra/bigquery"
	"github.com/finum/finum/internal/jobs"
	"github.com/finum/finum/internal/jobs/inmemory"
	"github.com/finum/finum/internal/ledger"
	"github.com/finum/finum/internal/logger"
	"github.com/finum/finum/internal/patterns"
)

func main() {
	var (
		port          = flag.String("port", "8080", "HTTP server port")
		archiveBucket = flag.String("archive-bucket", os.Getenv("ARCHIVE_BUCKET"), "GCS bucket for raw import archiving (or set ARCHIVE_BUCKET env)")
	)
	flag.Parse()

	log := logger.New()

	if *archiveBucket == "" {
		log.Warn().Msg("No archive bucket configured - raw import archiving is disabled")
	}

	ctx := context.Background()

	repo, err := infraBQ.NewRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	// Services
	ledgerSvc := ledger.NewService(repo, log)
	patternsSvc := patterns.NewService(repo, log)
	analyticsSvc := analytics.NewService(repo)
	importerSvc := importer.NewService(repo, fx.NewStaticConverter(fx.DefaultRates()), ledgerSvc, log)

	// Job infrastructure. The queue runs in-process; maintenance jobs
	// enqueued by the API are consumed right here.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		userJob, ok := job.(*jobs.UserJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", userJob.JobID).
			Str("type", string(userJob.Type)).
			Str("user_id", userJob.UserID).
			Msg("Processing job")

		switch userJob.Type {
		case jobs.JobTypeRefreshPatterns:
			_, err := patternsSvc.Refresh(ctx, userJob.UserID, userJob.LookbackMonths)
			return err
		case jobs.JobTypeReconcileBuckets:
			drifts, err := ledgerSvc.Reconcile(ctx, userJob.UserID)
			if err != nil {
				return err
			}
			if len(drifts) > 0 {
				log.Warn().
					Str("user_id", userJob.UserID).
					Int("drifts", len(drifts)).
					Msg("Reconcile repaired drifted buckets")
			}
			return nil
		default:
			return fmt.Errorf("unknown job type: %s", userJob.Type)
		}
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Handlers
	transactionsHandler := handlers.NewTransactionsHandler(repo, importerSvc, ledgerSvc, *archiveBucket, log)
	bucketsHandler := handlers.NewBucketsHandler(repo, ledgerSvc, log)
	rulesHandler := handlers.NewRulesHandler(repo, log)
	patternsHandler := handlers.NewPatternsHandler(repo, patternsSvc, jobQueue, log)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsSvc, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	// Transactions
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/import", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			transactionsHandler.Import(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		txID, action, _ := strings.Cut(rest, "/")
		if txID == "" || action != "link" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method == http.MethodPost {
			transactionsHandler.Link(w, r, txID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Buckets
	mux.HandleFunc("/api/buckets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			bucketsHandler.List(w, r)
		case http.MethodPost:
			bucketsHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/buckets/reconcile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			bucketsHandler.Reconcile(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/buckets/", func(w http.ResponseWriter, r *http.Request) {
		bucketID := strings.TrimPrefix(r.URL.Path, "/api/buckets/")
		if bucketID == "" || strings.Contains(bucketID, "/") {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method == http.MethodPut {
			bucketsHandler.Update(w, r, bucketID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Rules
	mux.HandleFunc("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rulesHandler.List(w, r)
		case http.MethodPost:
			rulesHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/rules/", func(w http.ResponseWriter, r *http.Request) {
		ruleID := strings.TrimPrefix(r.URL.Path, "/api/rules/")
		if ruleID == "" || strings.Contains(ruleID, "/") {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method == http.MethodDelete {
			rulesHandler.Delete(w, r, ruleID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Patterns
	mux.HandleFunc("/api/patterns", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			patternsHandler.Get(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/patterns/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			patternsHandler.Refresh(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/patterns/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/patterns/")
		patternID, action, _ := strings.Cut(rest, "/")
		if patternID == "" || action != "status" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method == http.MethodPost {
			patternsHandler.UpdateStatus(w, r, patternID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Analytics
	mux.HandleFunc("/api/analytics/runrate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			analyticsHandler.RunRate(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/analytics/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			analyticsHandler.Health(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Apply middleware. The health check stays outside Auth.
	api := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)
	root := http.NewServeMux()
	root.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	root.Handle("/api/", api)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
