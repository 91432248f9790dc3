package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/desertthunder/stationsync/internal/archive"
	"github.com/desertthunder/stationsync/internal/classifier"
	"github.com/desertthunder/stationsync/internal/collection"
	"github.com/desertthunder/stationsync/internal/downloads"
	"github.com/desertthunder/stationsync/internal/repositories"
	"github.com/desertthunder/stationsync/internal/shared"
	"github.com/desertthunder/stationsync/internal/transport"
)

const collectionFileName = "collection.json"

// app is the set of services one command runs against.
type app struct {
	db          *sql.DB
	prefs       *repositories.Preferences
	history     *repositories.DownloadLogRepository
	broadcaster *collection.Broadcaster
	collection  *collection.Service
	transport   *transport.Manager
	downloads   *downloads.Manager
	archive     *archive.Service
}

// open wires the database, collection, transport, download manager and archive service.
// Completions reported by the transport are routed to the download manager.
func (r *Runner) open(ctx context.Context) (*app, error) {
	cfg := r.config

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{
		db:          db,
		prefs:       repositories.NewPreferences(db),
		history:     repositories.NewDownloadLogRepository(db),
		broadcaster: collection.NewBroadcaster(),
	}

	a.collection, err = collection.New(collection.Options{
		Store:       repositories.NewCollectionStore(filepath.Join(cfg.CollectionDir(), collectionFileName)),
		Preferences: a.prefs,
		ImagesDir:   cfg.ImagesDir(),
		Notifier:    a.broadcaster,
		Logger:      r.logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	overMobile, err := a.prefs.DownloadOverMobile()
	if err != nil {
		r.logger.Warn("failed to read download preference", "error", err)
	}

	a.transport = transport.New(transport.Options{
		Client:    r.httpClient,
		UserAgent: cfg.Downloads.UserAgent,
		RateLimit: cfg.Downloads.RateLimit,
		Logger:    r.logger,
	})

	a.downloads, err = downloads.New(ctx, downloads.Options{
		Transport:   a.transport,
		Collection:  a.collection,
		Prober:      classifier.NewProber(r.httpClient, cfg.Downloads.UserAgent, cfg.Downloads.ProbeTimeout(), r.logger),
		Preferences: a.prefs,
		History:     a.history,
		Reporter: downloads.ErrorReporterFunc(func(failure *downloads.DownloadFailure) {
			r.writePlain("✗ %v\n", failure)
		}),
		Logger:             r.logger,
		TempDir:            cfg.Storage.TempDir,
		DownloadOverMobile: cfg.Downloads.DownloadOverMobile || overMobile,
		ProbeWorkers:       cfg.Downloads.ProbeWorkers,
	})
	if err != nil {
		a.transport.Close()
		a.collection.Close()
		db.Close()
		return nil, err
	}

	completions := context.WithoutCancel(ctx)
	a.transport.OnComplete(func(id int64) {
		if err := a.downloads.OnDownloadComplete(completions, id); err != nil {
			r.logger.Debug("completion handled with error", "id", id, "error", err)
		}
	})

	// A restore is committed again under a fresh date so every service sharing the store
	// reloads it; the commit notifies the broadcaster.
	a.archive = archive.New(r.logger, collection.NotifierFunc(func(time.Time) {
		if _, err := a.collection.AdoptRestored(completions); err != nil {
			r.logger.Error("failed to adopt restored collection", "error", err)
		}
	}))

	return a, nil
}

// wait blocks until every started download and its merge have finished.
func (a *app) wait() {
	a.transport.Wait()
	a.downloads.Wait()
}

func (a *app) close() {
	a.transport.Close()
	a.downloads.Close()
	a.collection.Close()
	a.db.Close()
}
