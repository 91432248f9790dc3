// Package downloads translates download intents into host transport requests, deduplicates
// them against live host state, and routes each completion to the collection.
//
// Completions are handled in two task categories. Merges into the collection run on the
// collection's serialized mutation queue; stream probing for freshly downloaded playlists runs
// on a bounded worker group and rejoins the mutation queue only to commit.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/stationsync/internal/classifier"
	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/shared"
)

const defaultProbeWorkers = 4

// Collection is the part of the collection service the manager merges into.
type Collection interface {
	IsNewStation(url string) bool
	CreateStationFromPlaylist(path, originURL string) (models.Station, error)
	AddStation(ctx context.Context, station models.Station) (models.Collection, error)
	UpdateStation(ctx context.Context, station models.Station) (models.Collection, error)
	SetStationImage(ctx context.Context, localPath, remoteOrigin string) (models.Collection, error)
	ClearImagesFolder(ctx context.Context, station models.Station) error
	Collection() models.Collection
}

// Prober detects the content type of a stream.
type Prober interface {
	Probe(ctx context.Context, uri string) classifier.ContentType
}

// Preferences persists the active download set.
type Preferences interface {
	ActiveDownloads() (string, error)
	SetActiveDownloads(ids string) error
	SetLastUpdateCollection(t time.Time) error
}

// History records how finished downloads were handled.
type History interface {
	Record(rec models.DownloadRecord) error
}

// Options configures a [Manager].
type Options struct {
	Transport   Transport
	Collection  Collection
	Prober      Prober
	Preferences Preferences
	History     History
	Reporter    ErrorReporter
	Logger      *log.Logger
	// TempDir receives downloaded files; it is emptied when the manager starts.
	TempDir            string
	DownloadOverMobile bool
	ProbeWorkers       int
}

// Manager is the single path through which downloads are enqueued and completed.
type Manager struct {
	transport  Transport
	collection Collection
	prober     Prober
	prefs      Preferences
	history    History
	reporter   ErrorReporter
	logger     *log.Logger
	tempDir    string
	overMobile bool

	mu     sync.Mutex
	active *ActiveSet

	probes *errgroup.Group
}

// New builds a manager: it loads the persisted active set, prunes ids the host no longer
// reports as running, and clears the temp folder.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Transport == nil || opts.Collection == nil || opts.Preferences == nil {
		return nil, fmt.Errorf("%w: transport, collection and preferences are required", shared.ErrInvalidInput)
	}
	if opts.ProbeWorkers <= 0 {
		opts.ProbeWorkers = defaultProbeWorkers
	}

	m := &Manager{
		transport:  opts.Transport,
		collection: opts.Collection,
		prober:     opts.Prober,
		prefs:      opts.Preferences,
		history:    opts.History,
		reporter:   opts.Reporter,
		logger:     shared.WithLogger(opts.Logger, "component", "downloads"),
		tempDir:    opts.TempDir,
		overMobile: opts.DownloadOverMobile,
		probes:     new(errgroup.Group),
	}
	m.probes.SetLimit(opts.ProbeWorkers)

	if err := m.loadActive(ctx); err != nil {
		return nil, err
	}
	if err := clearFolder(m.tempDir); err != nil {
		m.logger.Warn("failed to clear temp folder", "dir", m.tempDir, "error", err)
	}
	return m, nil
}

// loadActive restores the persisted set and drops every id the host is not running.
func (m *Manager) loadActive(ctx context.Context) error {
	raw, err := m.prefs.ActiveDownloads()
	if err != nil {
		return fmt.Errorf("failed to load active downloads: %w", err)
	}
	persisted := ParseActiveSet(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = NewActiveSet()
	pruned := false
	for _, id := range persisted.IDs() {
		status, err := m.transport.Query(ctx, id)
		if err != nil || status.State != StateRunning {
			m.logger.Debug("pruning inactive download", "id", id, "state", status.State)
			pruned = true
			continue
		}
		m.active.Add(id, status.OriginURI)
	}
	if pruned {
		return m.persistLocked()
	}
	return nil
}

// ActiveIDs returns the ids currently believed in flight.
func (m *Manager) ActiveIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.IDs()
}

// AllowedNetworks returns the networks a download of kind may use. Audio is Wi-Fi only
// unless downloading over mobile is enabled or the caller overrides the restriction.
func (m *Manager) AllowedNetworks(kind models.Kind, ignoreWiFiRestriction bool) models.NetworkConstraint {
	if kind == models.KindAudio && !ignoreWiFiRestriction && !m.overMobile {
		return models.NetworkWiFi
	}
	return models.NetworkAny
}

// EnqueuePlaylists submits a playlist download for each URL not already in flight.
func (m *Manager) EnqueuePlaylists(ctx context.Context, urls []string) ([]int64, error) {
	return m.Enqueue(ctx, models.DownloadRequest{
		URIs:    urls,
		Kind:    models.KindPlaylist,
		Network: m.AllowedNetworks(models.KindPlaylist, false),
	})
}

// RefreshStationImage clears the station's stored images and downloads its remote image again.
func (m *Manager) RefreshStationImage(ctx context.Context, station models.Station) error {
	if station.RemoteImageLocation == "" {
		return nil
	}
	if err := m.collection.ClearImagesFolder(ctx, station); err != nil {
		return err
	}
	_, err := m.Enqueue(ctx, models.DownloadRequest{
		URIs:    []string{station.RemoteImageLocation},
		Kind:    models.KindImage,
		Network: m.AllowedNetworks(models.KindImage, false),
	})
	return err
}

// RefreshAllImages downloads the remote image of every station whose image was not set manually.
func (m *Manager) RefreshAllImages(ctx context.Context) error {
	if err := m.prefs.SetLastUpdateCollection(time.Now()); err != nil {
		m.logger.Warn("failed to record collection update", "error", err)
	}

	var uris []string
	for _, station := range m.collection.Collection().Stations {
		if !station.ImageManuallySet && station.RemoteImageLocation != "" {
			uris = append(uris, station.RemoteImageLocation)
		}
	}
	m.logger.Info("updating all station images", "count", len(uris))

	_, err := m.Enqueue(ctx, models.DownloadRequest{
		URIs:    uris,
		Kind:    models.KindImage,
		Network: m.AllowedNetworks(models.KindImage, false),
	})
	return err
}

// Enqueue submits req.URIs to the host. Ineligible URLs and URLs already running on the host
// are skipped. The check and the submission happen under one lock, so concurrent requests
// for the same URL enqueue it once.
func (m *Manager) Enqueue(ctx context.Context, req models.DownloadRequest) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	var submitErr error
	for _, uri := range req.URIs {
		fileName, err := eligibleFileName(uri)
		if err != nil {
			m.logger.Warn("skipping download", "uri", uri, "error", err)
			continue
		}
		if m.inFlightLocked(ctx, uri) {
			m.logger.Warn("file is already in download queue", "uri", uri)
			continue
		}

		id, err := m.transport.Submit(ctx, Request{
			URI:            uri,
			Title:          fileName,
			DestinationDir: m.tempDir,
			Kind:           req.Kind,
			Network:        req.Network,
		})
		if err != nil {
			m.logger.Error("failed to submit download", "uri", uri, "error", err)
			submitErr = errors.Join(submitErr, fmt.Errorf("submit %s: %w", uri, err))
			continue
		}
		m.logger.Debug("enqueued download", "id", id, "uri", uri, "kind", req.Kind, "network", req.Network)
		m.active.Add(id, uri)
		ids = append(ids, id)
	}

	if len(ids) > 0 {
		if err := m.persistLocked(); err != nil {
			return ids, errors.Join(submitErr, err)
		}
	}
	return ids, submitErr
}

// inFlightLocked reports whether the host is running a tracked download of uri. The URL map
// answers directly; ids restored without a known URL are checked against the host's origin.
func (m *Manager) inFlightLocked(ctx context.Context, uri string) bool {
	if id, ok := m.active.Lookup(uri); ok && m.runningFor(ctx, id, uri) {
		return true
	}
	for _, id := range m.active.IDs() {
		if m.active.URL(id) == "" && m.runningFor(ctx, id, uri) {
			return true
		}
	}
	return false
}

func (m *Manager) runningFor(ctx context.Context, id int64, uri string) bool {
	status, err := m.transport.Query(ctx, id)
	if err != nil {
		return false
	}
	return status.OriginURI == uri && (status.State == StateRunning || status.State == StatePending)
}

// OnDownloadComplete handles the host's notification that id finished.
//
// A failed download is reported, forgotten, and deleted on the host; the returned error is the
// [*DownloadFailure]. A successful download is classified and merged, then forgotten while
// its host record is kept.
func (m *Manager) OnDownloadComplete(ctx context.Context, id int64) error {
	status, err := m.transport.Query(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to query download %d: %w", id, err)
	}

	switch status.State {
	case StateUnknown:
		m.forget(ctx, id, false)
		return fmt.Errorf("%w: %d", shared.ErrUnknownDownload, id)
	case StatePending, StateRunning:
		m.logger.Debug("download not finished", "id", id, "state", status.State)
		return nil
	case StateFailed:
		return m.fail(ctx, id, status)
	}

	if status.LocalPath == "" {
		return m.fail(ctx, id, status)
	}

	contentType := classifier.ClassifyFile(status.LocalPath)
	outcome := models.OutcomeSucceeded
	switch {
	case models.IsPlaylist(contentType):
		if err := m.mergePlaylist(ctx, status); err != nil {
			m.logger.Warn("playlist not merged", "origin", status.OriginURI, "error", err)
			outcome = models.OutcomeIgnored
		}
	case models.IsImage(contentType):
		if _, err := m.collection.SetStationImage(ctx, status.LocalPath, status.OriginURI); err != nil {
			m.logger.Error("failed to set station image", "origin", status.OriginURI, "error", err)
			outcome = models.OutcomeIgnored
		}
	default:
		m.logger.Info("ignoring download", "id", id, "type", contentType, "origin", status.OriginURI)
		outcome = models.OutcomeIgnored
	}

	m.record(models.DownloadRecord{DownloadID: id, ContentType: contentType, OriginURL: status.OriginURI, Outcome: outcome})
	m.forget(ctx, id, false)
	return nil
}

func (m *Manager) fail(ctx context.Context, id int64, status Status) error {
	reason := status.Reason
	if status.State != StateFailed {
		reason = -1
	}
	failure := &DownloadFailure{ID: id, FileName: status.Title, Reason: reason}

	m.logger.Warn("download not successful", "file", failure.FileName, "reason", failure.Reason)
	if m.reporter != nil {
		m.reporter.ReportDownloadFailure(failure)
	}
	m.record(models.DownloadRecord{DownloadID: id, OriginURL: status.OriginURI, Outcome: models.OutcomeFailed, Reason: reason})
	m.forget(ctx, id, true)
	return failure
}

// mergePlaylist parses the playlist now and schedules the stream probe and commit.
func (m *Manager) mergePlaylist(ctx context.Context, status Status) error {
	isNew := m.collection.IsNewStation(status.OriginURI)
	station, err := m.collection.CreateStationFromPlaylist(status.LocalPath, status.OriginURI)
	if err != nil {
		return err
	}

	// probes outlive the request that triggered them
	probeCtx := context.WithoutCancel(ctx)
	m.probes.Go(func() error {
		m.probeAndCommit(probeCtx, station, isNew)
		return nil
	})
	return nil
}

func (m *Manager) probeAndCommit(ctx context.Context, station models.Station, isNew bool) {
	station.StreamContent = models.MimeTypeUnsupported
	if m.prober != nil {
		if ct := m.prober.Probe(ctx, station.StreamURI()); ct.Type != "" {
			station.StreamContent = ct.Type
		}
	}

	var err error
	if isNew {
		_, err = m.collection.AddStation(ctx, station)
		if errors.Is(err, shared.ErrDuplicateStation) {
			// another completion for the same origin committed first
			_, err = m.collection.UpdateStation(ctx, station)
		}
	} else {
		_, err = m.collection.UpdateStation(ctx, station)
	}
	if err != nil {
		m.logger.Error("failed to commit station", "name", station.Name, "origin", station.RemoteStationLocation, "error", err)
	}
}

// forget drops id from the active set and, when remove is set, deletes the host record.
func (m *Manager) forget(ctx context.Context, id int64, remove bool) {
	m.mu.Lock()
	if m.active.Remove(id) {
		if err := m.persistLocked(); err != nil {
			m.logger.Error("failed to persist active downloads", "error", err)
		}
	}
	m.mu.Unlock()

	if remove {
		if err := m.transport.Remove(ctx, id); err != nil {
			m.logger.Warn("failed to remove download", "id", id, "error", err)
		}
	}
}

func (m *Manager) record(rec models.DownloadRecord) {
	if m.history == nil {
		return
	}
	if err := m.history.Record(rec); err != nil {
		m.logger.Warn("failed to record download", "id", rec.DownloadID, "error", err)
	}
}

func (m *Manager) persistLocked() error {
	if err := m.prefs.SetActiveDownloads(m.active.String()); err != nil {
		return fmt.Errorf("failed to persist active downloads: %w", err)
	}
	return nil
}

// Wait blocks until every scheduled probe has committed.
func (m *Manager) Wait() {
	_ = m.probes.Wait()
}

// Close waits for outstanding probes.
func (m *Manager) Close() {
	m.Wait()
}

// eligibleFileName returns the last path segment of an http(s) URL, which names the download.
func eligibleFileName(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrIneligibleURL, err)
	}
	if !strings.HasPrefix(strings.ToLower(u.Scheme), "http") {
		return "", fmt.Errorf("%w: scheme %q", shared.ErrIneligibleURL, u.Scheme)
	}
	name := path.Base(u.Path)
	if u.Path == "" || name == "/" || name == "." {
		return "", fmt.Errorf("%w: no file name in %s", shared.ErrIneligibleURL, raw)
	}
	return name, nil
}

// clearFolder removes the contents of dir, creating it if missing.
func clearFolder(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
