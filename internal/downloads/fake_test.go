package downloads

import (
	"context"
	"fmt"
	"image/color"
	"sync"

	"github.com/desertthunder/stationsync/internal/classifier"
)

// fakeTransport is an in-memory host whose downloads stay running until the test finishes them.
type fakeTransport struct {
	mu       sync.Mutex
	next     int64
	statuses map[int64]Status
	requests []Request
	removed  []int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{next: 100, statuses: make(map[int64]Status)}
}

func (f *fakeTransport) Submit(_ context.Context, req Request) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.statuses[f.next] = Status{State: StateRunning, OriginURI: req.URI, Title: req.Title}
	f.requests = append(f.requests, req)
	return f.next, nil
}

func (f *fakeTransport) Query(_ context.Context, id int64) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id], nil
}

func (f *fakeTransport) Remove(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[id]; !ok {
		return fmt.Errorf("no download %d", id)
	}
	delete(f.statuses, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeTransport) set(id int64, st Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = st
}

func (f *fakeTransport) succeed(id int64, localPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.statuses[id]
	st.State = StateSucceeded
	st.LocalPath = localPath
	f.statuses[id] = st
}

func (f *fakeTransport) fail(id int64, reason int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.statuses[id]
	st.State = StateFailed
	st.Reason = reason
	f.statuses[id] = st
}

func (f *fakeTransport) submitted() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

type fakeProber struct {
	contentType string
	mu          sync.Mutex
	probed      []string
}

func (p *fakeProber) Probe(_ context.Context, uri string) classifier.ContentType {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, uri)
	return classifier.ContentType{Type: p.contentType}
}

var colorBlue = color.RGBA{B: 255, A: 255}
