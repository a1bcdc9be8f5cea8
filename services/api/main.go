// Messaging API service: conversations, messages, read state and
// notification fan-out over a Postgres storage collaborator.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/internal/config"
	"github.com/campuslink/internal/directory"
	"github.com/campuslink/internal/handler"
	"github.com/campuslink/internal/logger"
	"github.com/campuslink/internal/middleware"
	"github.com/campuslink/internal/notify"
	"github.com/campuslink/internal/push"
	"github.com/campuslink/internal/repository"
	"github.com/campuslink/internal/service"
	"github.com/campuslink/internal/startup"
	"github.com/campuslink/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting messaging API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	dir := directory.NewPgDirectory(pool)
	convRepo := repository.NewConversationRepository(pool)
	partRepo := repository.NewParticipantRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	readRepo := repository.NewReadStateRepository(pool)
	notifRepo := repository.NewNotificationRepository(pool)
	pushClient := push.NewClient(cfg.PushServiceURL)

	dispatcher := notify.NewDispatcher(notifRepo, pushClient)
	dispCtx, dispCancel := context.WithCancel(context.Background())
	var dispWg sync.WaitGroup
	dispWg.Add(1)
	go func() {
		defer dispWg.Done()
		dispatcher.Run(dispCtx)
	}()

	svc := service.NewConversations(dir, convRepo, partRepo, msgRepo, readRepo, dispatcher)
	convH := handler.NewConversationHandler(svc)
	msgH := handler.NewMessageHandler(svc)
	pushH := handler.NewPushHandler(pushClient)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthServiceValidate(cfg.AuthServiceURL, nil))
		r.Get("/search", convH.SearchUsers)
		r.Get("/conversations", convH.ListConversations)
		r.Get("/conversations/unread", convH.UnreadSummary)
		r.Post("/conversations/direct", convH.CreateDirect)
		r.Post("/conversations/group", convH.CreateGroup)
		r.Put("/conversations/{id}/name", convH.RenameGroup)
		r.Put("/conversations/{id}/avatar", convH.SetAvatar)
		r.Post("/conversations/{id}/members", convH.AddMember)
		r.Delete("/conversations/{id}", convH.DeleteConversation)
		r.Get("/conversations/{id}/messages", msgH.GetMessages)
		r.Post("/conversations/{id}/messages", msgH.SendMessage)
		r.Post("/conversations/{id}/read", msgH.MarkRead)
		r.Post("/push/subscribe", pushH.Subscribe)
		r.Delete("/push/subscribe", pushH.Unsubscribe)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	dispCancel()
	dispWg.Wait()
	logger.Info("dispatcher drained")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "campuslink"
		password = "campuslink_secret"
		database = "campuslink"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
