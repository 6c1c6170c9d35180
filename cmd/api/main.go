package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"casebook/api/internal/app"
	"casebook/api/internal/archive"
	"casebook/api/internal/artifact"
	"casebook/api/internal/config"
	"casebook/api/internal/draft"
	"casebook/api/internal/email"
	"casebook/api/internal/export"
	"casebook/api/internal/journal"
	"casebook/api/internal/record"
	"casebook/api/internal/search"
	"casebook/api/internal/submit"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := archive.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := archive.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	archiveStore := archive.NewStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, archiveStore)

	// Durable drafts live in Redis; an unreachable Redis degrades to an
	// in-memory store so the clinic can keep working, flagged on /api/ready.
	var drafts draft.Store
	degraded := false
	redisStore, err := draft.NewRedisStore(cfg.RedisURL, cfg.DraftRetention)
	if err != nil {
		log.Printf("WARNING: redis unavailable, drafts are in-memory only: %v", err)
		drafts = draft.NewMemoryStore()
		degraded = true
	} else {
		defer redisStore.Close()
		drafts = redisStore
	}

	var journalService *journal.Service
	if strings.TrimSpace(cfg.JournalDir) != "" {
		if err := os.MkdirAll(cfg.JournalDir, 0o755); err != nil {
			log.Fatalf("failed to create journal dir: %v", err)
		}
		journalService = journal.New(cfg.JournalDir)
	}

	hooks := []draft.FlushHook{
		func(rec *record.CaseRecord) { searchService.Index(rec) },
	}
	if journalService != nil {
		hooks = append(hooks, func(rec *record.CaseRecord) {
			if err := journalService.Append(rec); err != nil {
				log.Printf("journal snapshot %s: %v", rec.CaseID, err)
			}
		})
	}
	synchronizer := draft.NewSynchronizer(drafts, cfg.DebounceDelay, hooks...)

	exporter := export.NewService()

	var artifactService *artifact.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		artifactService, err = artifact.NewService(artifact.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("object storage setup failed: %v", err)
		}
		if err := artifactService.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: artifact bucket check failed: %v", err)
		}
	}

	var pipeline *submit.Pipeline
	if strings.TrimSpace(cfg.SheetRecordURL) != "" {
		client := submit.NewClient(submit.ClientConfig{
			RecordURL:   cfg.SheetRecordURL,
			TemplateURL: cfg.SheetTemplateURL,
			AnalysisURL: cfg.SheetAnalysisURL,
			ReportURL:   cfg.SheetReportURL,
			Token:       cfg.SheetToken,
		})
		var renderer submit.ChartRenderer
		var artifacts submit.ArtifactStore
		if artifactService != nil {
			renderer = exporter
			artifacts = artifactService
		}
		pipeline = submit.NewPipeline(client, cfg.SubmitMaxRetries, cfg.SubmitBaseDelay, renderer, artifacts)
	} else {
		log.Printf("WARNING: CASEBOOK_SHEET_RECORD_URL not set, submission disabled")
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	service := app.New(cfg, drafts, synchronizer, app.Options{
		Pipeline: pipeline,
		Archive:  archiveStore,
		Search:   searchService,
		Exporter: exporter,
		Email:    emailService,
		Journal:  journalService,
		Degraded: degraded,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Submission runs synchronously inside the request, retries included.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Casebook API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// Pending debounced draft writes flush before exit.
	if err := service.Close(); err != nil {
		log.Printf("draft flush on shutdown: %v", err)
	}
}
