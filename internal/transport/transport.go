// Package transport is an in-process host download service.
//
// It accepts requests, fetches them over HTTP into their destination folder, keeps a record per
// download id until it is removed, and reports every finished download to a completion handler.
// Requests whose network constraint excludes the current network wait until [Manager.SetNetwork]
// allows them.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/stationsync/internal/downloads"
	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/shared"
)

const defaultTimeout = 60 * time.Second

// Options configures a [Manager].
type Options struct {
	Client    *http.Client
	UserAgent string
	// RateLimit is the number of downloads started per second; zero means unlimited.
	RateLimit float64
	// Network is the network currently available; it defaults to Wi-Fi.
	Network models.NetworkConstraint
	Logger  *log.Logger
}

type record struct {
	req    downloads.Request
	status downloads.Status
	cancel context.CancelFunc
}

// Manager implements [downloads.Transport].
type Manager struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *log.Logger

	mu         sync.RWMutex
	records    map[int64]*record
	next       int64
	network    models.NetworkConstraint
	onComplete func(id int64)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ downloads.Transport = (*Manager)(nil)

func New(opts Options) *Manager {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Network == 0 {
		opts.Network = models.NetworkWiFi
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    shared.WithLogger(opts.Logger, "component", "transport"),
		records:   make(map[int64]*record),
		network:   opts.Network,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnComplete sets the handler called with the id of every download that succeeds or fails.
func (m *Manager) OnComplete(fn func(id int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onComplete = fn
}

// SetNetwork changes the current network and starts downloads that were waiting for it.
func (m *Manager) SetNetwork(network models.NetworkConstraint) {
	m.mu.Lock()
	m.network = network
	var waiting []int64
	for id, r := range m.records {
		if r.status.State == downloads.StatePending && r.cancel == nil && r.req.Network.Allows(network) {
			waiting = append(waiting, id)
		}
	}
	m.mu.Unlock()

	for _, id := range waiting {
		m.start(id)
	}
}

func (m *Manager) Submit(ctx context.Context, req downloads.Request) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if req.URI == "" || req.Title == "" {
		return 0, fmt.Errorf("%w: request needs a uri and a title", shared.ErrInvalidInput)
	}
	if req.Network == 0 {
		req.Network = models.NetworkAny
	}

	m.mu.Lock()
	m.next++
	id := m.next
	m.records[id] = &record{
		req:    req,
		status: downloads.Status{State: downloads.StatePending, OriginURI: req.URI, Title: req.Title},
	}
	allowed := req.Network.Allows(m.network)
	m.mu.Unlock()

	if allowed {
		m.start(id)
	} else {
		m.logger.Debug("download waiting for network", "id", id, "allowed", req.Network)
	}
	return id, nil
}

func (m *Manager) Query(_ context.Context, id int64) (downloads.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return downloads.Status{State: downloads.StateUnknown}, nil
	}
	return r.status, nil
}

// Remove cancels the download if it is still running, deletes its file and forgets it.
func (m *Manager) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	r, ok := m.records[id]
	if ok {
		delete(m.records, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", shared.ErrUnknownDownload, id)
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.status.LocalPath != "" {
		if err := os.Remove(r.status.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete download %d: %w", id, err)
		}
	}
	return nil
}

// Records returns every known download id and status.
func (m *Manager) Records() map[int64]downloads.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]downloads.Status, len(m.records))
	for id, r := range m.records {
		out[id] = r.status
	}
	return out
}

// Wait blocks until every started download has finished and its handler returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels running downloads and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) start(id int64) {
	ctx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	r, ok := m.records[id]
	if !ok || r.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	r.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, id, r.req)
	}()
}

func (m *Manager) run(ctx context.Context, id int64, req downloads.Request) {
	if err := m.limiter.Wait(ctx); err != nil {
		m.finish(id, downloads.Status{State: downloads.StateFailed, Reason: downloads.ReasonUnknown})
		return
	}
	m.update(id, func(s *downloads.Status) { s.State = downloads.StateRunning })

	path, reason, err := m.fetch(ctx, req)
	if err != nil {
		m.logger.Warn("download failed", "id", id, "uri", req.URI, "reason", reason, "error", err)
		m.finish(id, downloads.Status{State: downloads.StateFailed, Reason: reason})
		return
	}
	m.logger.Debug("download finished", "id", id, "path", path)
	m.finish(id, downloads.Status{State: downloads.StateSucceeded, LocalPath: path})
}

// fetch downloads req into its destination folder and returns the file path, or a failure
// reason: the HTTP status for error responses, [downloads.ReasonUnknown] otherwise.
func (m *Manager) fetch(ctx context.Context, req downloads.Request) (string, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URI, nil)
	if err != nil {
		return "", downloads.ReasonUnknown, err
	}
	if m.userAgent != "" {
		httpReq.Header.Set("User-Agent", m.userAgent)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", downloads.ReasonUnknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if err := os.MkdirAll(req.DestinationDir, 0o755); err != nil {
		return "", downloads.ReasonFileError, err
	}
	f, err := createUnique(req.DestinationDir, req.Title)
	if err != nil {
		return "", downloads.ReasonFileError, err
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", downloads.ReasonHTTPDataError, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", downloads.ReasonFileError, err
	}
	return f.Name(), downloads.ReasonNone, nil
}

func (m *Manager) update(id int64, fn func(*downloads.Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		fn(&r.status)
	}
}

// finish stores the final state and calls the completion handler, unless the download was
// removed in the meantime.
func (m *Manager) finish(id int64, final downloads.Status) {
	m.mu.Lock()
	r, ok := m.records[id]
	if ok {
		r.status.State = final.State
		r.status.Reason = final.Reason
		r.status.LocalPath = final.LocalPath
	}
	handler := m.onComplete
	m.mu.Unlock()

	if ok && handler != nil {
		handler(id)
	}
}

// createUnique creates name in dir, appending -1, -2, ... before the extension when taken.
func createUnique(dir, name string) (*os.File, error) {
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + "-" + strconv.Itoa(i) + ext
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return f, err
	}
}
