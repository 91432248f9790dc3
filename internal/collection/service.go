// Package collection owns the in-memory station collection and serializes every mutation of it.
//
// All writes go through a single goroutine draining a task queue, so merges arriving from
// concurrent download completions never interleave. Readers get a snapshot guarded by a
// read/write mutex. Every commit persists the whole collection, advances its modification
// date, records the date and size in preferences, and notifies subscribers.
package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/playlist"
	"github.com/desertthunder/stationsync/internal/shared"
)

// DefaultImageLocation is the placeholder image reference written by older releases.
const DefaultImageLocation = "builtin:default-station-image"

// Store loads and saves the persisted collection.
type Store interface {
	Load() (models.Collection, error)
	Save(models.Collection) error
}

// Preferences holds the collection freshness token and size.
type Preferences interface {
	CollectionModificationDate() (time.Time, error)
	SetCollectionModificationDate(time.Time) error
	SetCollectionSize(int) error
}

// Options configures a [Service].
type Options struct {
	Store       Store
	Preferences Preferences
	// ImagesDir holds one folder of images per station uuid.
	ImagesDir     string
	Notifier      Notifier
	Logger        *log.Logger
	ThumbnailSize int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the single owner of collection mutations.
type Service struct {
	store     Store
	prefs     Preferences
	imagesDir string
	notifier  Notifier
	logger    *log.Logger
	thumbSize int
	now       func() time.Time

	mu      sync.RWMutex
	current models.Collection
	// persisted is the modification date this service last read or wrote.
	persisted time.Time

	tasks     chan task
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type task struct {
	ctx    context.Context
	fn     func(*models.Collection) (bool, error)
	result chan taskResult
}

type taskResult struct {
	collection models.Collection
	err        error
}

// New loads the persisted collection and starts the mutation queue.
func New(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Preferences == nil {
		return nil, fmt.Errorf("%w: collection store and preferences are required", shared.ErrInvalidInput)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = defaultThumbnailSize
	}

	s := &Service{
		store:     opts.Store,
		prefs:     opts.Preferences,
		imagesDir: opts.ImagesDir,
		notifier:  opts.Notifier,
		logger:    shared.WithLogger(opts.Logger, "component", "collection"),
		thumbSize: opts.ThumbnailSize,
		now:       opts.Now,
		tasks:     make(chan task),
		done:      make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Close stops the mutation queue. Pending submissions fail with [shared.ErrCollectionClosed].
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Service) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case t := <-s.tasks:
			c, err := s.apply(t)
			t.result <- taskResult{collection: c, err: err}
		}
	}
}

// submit runs fn on the mutation goroutine and waits for the committed collection.
func (s *Service) submit(ctx context.Context, fn func(*models.Collection) (bool, error)) (models.Collection, error) {
	t := task{ctx: ctx, fn: fn, result: make(chan taskResult, 1)}
	select {
	case s.tasks <- t:
	case <-s.done:
		return models.Collection{}, shared.ErrCollectionClosed
	case <-ctx.Done():
		return models.Collection{}, ctx.Err()
	}
	r := <-t.result
	return r.collection, r.err
}

// apply refreshes the working copy if another writer advanced the persisted date, runs the
// mutation, and commits when it reports a change.
func (s *Service) apply(t task) (models.Collection, error) {
	if err := t.ctx.Err(); err != nil {
		return s.Collection(), err
	}
	if s.IsNewerCollectionAvailable(s.persistedDate()) {
		s.logger.Debug("persisted collection is newer, reloading")
		if err := s.load(); err != nil {
			return s.Collection(), err
		}
	}

	working := s.Collection()
	changed, err := t.fn(&working)
	if err != nil || !changed {
		return s.Collection(), err
	}
	return s.commit(working)
}

func (s *Service) commit(c models.Collection) (models.Collection, error) {
	date := shared.NextModificationDate(s.persistedDate(), s.now())
	c.ModificationDate = date
	c.Version = models.CurrentCollectionVersion

	if err := s.store.Save(c); err != nil {
		s.logger.Error("failed to save collection", "error", err)
		return s.Collection(), err
	}
	if err := s.prefs.SetCollectionModificationDate(date); err != nil {
		s.logger.Error("failed to store modification date", "error", err)
		return s.Collection(), err
	}
	if err := s.prefs.SetCollectionSize(len(c.Stations)); err != nil {
		s.logger.Warn("failed to store collection size", "error", err)
	}

	s.mu.Lock()
	s.current = c.Clone()
	s.persisted = date
	s.mu.Unlock()

	s.logger.Info("collection saved", "stations", len(c.Stations), "modified", shared.FormatRFC2822(date))
	if s.notifier != nil {
		s.notifier.NotifyCollectionChanged(date)
	}
	return c, nil
}

func (s *Service) load() error {
	c, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	persisted, err := s.prefs.CollectionModificationDate()
	if err != nil {
		return err
	}
	if c.ModificationDate.After(persisted) {
		persisted = c.ModificationDate
	}

	s.mu.Lock()
	s.current = c
	s.persisted = persisted
	s.mu.Unlock()
	return nil
}

func (s *Service) persistedDate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persisted
}

// Collection returns a snapshot of the current collection.
func (s *Service) Collection() models.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Reload re-reads the persisted collection on the mutation goroutine.
func (s *Service) Reload(ctx context.Context) (models.Collection, error) {
	var reloadErr error
	c, err := s.submit(ctx, func(*models.Collection) (bool, error) {
		reloadErr = s.load()
		return false, nil
	})
	if err != nil {
		return c, err
	}
	return s.Collection(), reloadErr
}

// AdoptRestored takes over a collection file that was replaced outside the service, for
// example by a restore. The file is committed again under a modification date later than
// any date seen so far, so other services sharing the store reload it before their next write.
func (s *Service) AdoptRestored(ctx context.Context) (models.Collection, error) {
	return s.submit(ctx, func(c *models.Collection) (bool, error) {
		restored, err := s.store.Load()
		if err != nil {
			return false, fmt.Errorf("failed to load restored collection: %w", err)
		}
		saved, err := s.prefs.CollectionModificationDate()
		if err != nil {
			return false, err
		}

		s.mu.Lock()
		s.persisted = latest(s.persisted, saved, restored.ModificationDate)
		s.mu.Unlock()

		*c = restored
		s.logger.Info("adopting restored collection", "stations", len(restored.Stations))
		return true, nil
	})
}

func latest(dates ...time.Time) time.Time {
	var out time.Time
	for _, d := range dates {
		if d.After(out) {
			out = d
		}
	}
	return out
}

// IsNewerCollectionAvailable reports whether the persisted modification date is after cached.
func (s *Service) IsNewerCollectionAvailable(cached time.Time) bool {
	persisted, err := s.prefs.CollectionModificationDate()
	if err != nil {
		s.logger.Warn("failed to read collection modification date", "error", err)
		return false
	}
	return persisted.After(cached)
}

// IsNewStation reports whether no station was created from the playlist at url.
func (s *Service) IsNewStation(url string) bool {
	return s.Collection().IndexOf(models.ByRemoteStationLocation(url)) < 0
}

// CreateStationFromPlaylist builds an unsaved station from a downloaded playlist file.
// The name comes from the playlist, or from the playlist URL when it has none.
func (s *Service) CreateStationFromPlaylist(path, originURL string) (models.Station, error) {
	pl, err := playlist.ParseFile(path)
	if err != nil {
		return models.Station{}, err
	}

	station := models.NewStation()
	station.Name = pl.Title()
	if station.Name == "" {
		station.Name = playlist.NameFromURL(originURL)
	}
	station.StreamURIs = pl.URIs()
	station.RemoteStationLocation = originURL
	station.ModificationDate = s.now().Truncate(time.Millisecond)
	return station, nil
}

// AddStation appends a new station. Duplicate uuids and playlist origins are rejected with
// [shared.ErrDuplicateStation].
func (s *Service) AddStation(ctx context.Context, station models.Station) (models.Collection, error) {
	if station.UUID == "" || station.Name == "" || station.StreamURI() == "" {
		return s.Collection(), fmt.Errorf("%w: %s", shared.ErrInvalidStation, station.Name)
	}

	return s.submit(ctx, func(c *models.Collection) (bool, error) {
		if c.IndexOf(models.ByUUID(station.UUID)) >= 0 {
			return false, fmt.Errorf("%w: uuid %s", shared.ErrDuplicateStation, station.UUID)
		}
		if c.IndexOf(models.ByRemoteStationLocation(station.RemoteStationLocation)) >= 0 {
			return false, fmt.Errorf("%w: %s", shared.ErrDuplicateStation, station.RemoteStationLocation)
		}

		added := station.Clone()
		added.ModificationDate = shared.NextModificationDate(c.ModificationDate, s.now())
		c.Stations = append(c.Stations, added)
		s.logger.Info("added station", "name", added.Name, "uuid", added.UUID)
		return true, nil
	})
}

// UpdateStation merges fresh values into the stored station with the same uuid or, failing
// that, the same playlist origin. The stored uuid and manually set name and image are kept.
func (s *Service) UpdateStation(ctx context.Context, fresh models.Station) (models.Collection, error) {
	return s.submit(ctx, func(c *models.Collection) (bool, error) {
		i := c.IndexOf(models.ByUUID(fresh.UUID))
		if i < 0 {
			i = c.IndexOf(models.ByRemoteStationLocation(fresh.RemoteStationLocation))
		}
		if i < 0 {
			return false, fmt.Errorf("%w: %s", shared.ErrStationNotFound, fresh.RemoteStationLocation)
		}

		merged := c.Stations[i].MergeFrom(fresh)
		merged.ModificationDate = shared.NextModificationDate(c.ModificationDate, s.now())
		c.Stations[i] = merged
		s.logger.Info("updated station", "name", merged.Name, "uuid", merged.UUID)
		return true, nil
	})
}

// SetStationImage stores the image downloaded from remoteOrigin for every station that
// references it, unless the station's image was set manually. Image files are moved into
// place only once every referencing station has been staged.
func (s *Service) SetStationImage(ctx context.Context, localPath, remoteOrigin string) (models.Collection, error) {
	return s.submit(ctx, func(c *models.Collection) (bool, error) {
		var staged []*stagedImage
		defer func() {
			for _, st := range staged {
				st.discard()
			}
		}()

		for i, station := range c.Stations {
			if station.RemoteImageLocation != remoteOrigin || station.ImageManuallySet {
				continue
			}
			st, err := stageStationImage(localPath, s.stationImagesDir(station), s.thumbSize)
			if err != nil {
				return false, err
			}
			staged = append(staged, st)
			station.Image = st.Image
			station.SmallImage = st.SmallImage
			station.ImageColor = st.Color
			c.Stations[i] = station
			s.logger.Debug("set station image", "name", station.Name, "image", st.Image)
		}
		if len(staged) == 0 {
			s.logger.Debug("no station references image", "origin", remoteOrigin)
			return false, nil
		}

		for _, st := range staged {
			if err := st.commit(); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// ClearImagesFolder deletes every stored image of station on the mutation goroutine.
func (s *Service) ClearImagesFolder(ctx context.Context, station models.Station) error {
	if s.imagesDir == "" || station.UUID == "" {
		return nil
	}
	var clearErr error
	_, err := s.submit(ctx, func(*models.Collection) (bool, error) {
		if err := os.RemoveAll(s.stationImagesDir(station)); err != nil && !errors.Is(err, os.ErrNotExist) {
			clearErr = fmt.Errorf("failed to clear images of %s: %w", station.UUID, err)
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	return clearErr
}

// RemoveDefaultImageReferences blanks image fields that still point at the legacy placeholder.
func (s *Service) RemoveDefaultImageReferences(ctx context.Context) (models.Collection, error) {
	return s.submit(ctx, func(c *models.Collection) (bool, error) {
		changed := false
		for i := range c.Stations {
			if c.Stations[i].Image == DefaultImageLocation {
				c.Stations[i].Image = ""
				changed = true
			}
			if c.Stations[i].SmallImage == DefaultImageLocation {
				c.Stations[i].SmallImage = ""
				changed = true
			}
		}
		return changed, nil
	})
}

func (s *Service) stationImagesDir(station models.Station) string {
	return filepath.Join(s.imagesDir, station.UUID)
}
