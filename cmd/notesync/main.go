package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"note-sync/internal/clock"
	"note-sync/internal/config"
	"note-sync/internal/handlers"
	httpapi "note-sync/internal/http"
	"note-sync/internal/logging"
	"note-sync/internal/migrations"
	"note-sync/internal/repos"
	"note-sync/internal/services"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	db, err := sql.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		log.Errorf("open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	// sqlite allows one writer; a single pooled connection keeps concurrent
	// pushes queued instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		log.Errorf("migrate: %v", err)
		os.Exit(1)
	}

	repo := repos.NewSyncRepo(db)
	svc := services.NewSyncService(repo, clock.System{})
	h := handlers.NewSyncHandler(svc, log)
	r := httpapi.NewRouter(cfg, log, h)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Infof("note-sync listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("serve: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Infof("note-sync stopped")
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
