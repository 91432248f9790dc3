package collection

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/repositories"
	"github.com/desertthunder/stationsync/internal/shared"
	th "github.com/desertthunder/stationsync/internal/testing"
)

type fixture struct {
	svc      *Service
	store    *repositories.CollectionStore
	prefs    *repositories.Preferences
	notifier *th.RecordingNotifier
	root     string
}

func newFixture(t *testing.T, now func() time.Time) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		store:    repositories.NewCollectionStore(filepath.Join(root, "collection", "collection.json")),
		prefs:    repositories.NewPreferences(th.NewTestDB(t)),
		notifier: &th.RecordingNotifier{},
		root:     root,
	}
	svc, err := New(Options{
		Store:       f.store,
		Preferences: f.prefs,
		ImagesDir:   filepath.Join(root, "images"),
		Notifier:    f.notifier,
		Now:         now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func testStation(name, origin string) models.Station {
	s := models.NewStation()
	s.Name = name
	s.StreamURIs = []string{"http://example.com/" + name}
	s.StreamContent = "audio/mpeg"
	s.RemoteStationLocation = origin
	return s
}

func TestAddStation(t *testing.T) {
	t.Run("persists and advances date", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := context.Background()

		c, err := f.svc.AddStation(ctx, testStation("one", "http://example.com/one.m3u"))
		if err != nil {
			t.Fatalf("AddStation: %v", err)
		}
		if len(c.Stations) != 1 {
			t.Fatalf("expected 1 station, got %d", len(c.Stations))
		}
		if !c.Stations[0].IsValid() {
			t.Errorf("added station should be valid: %+v", c.Stations[0])
		}

		persisted, err := f.store.Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(persisted.Stations) != 1 {
			t.Errorf("expected 1 persisted station, got %d", len(persisted.Stations))
		}

		date, _ := f.prefs.CollectionModificationDate()
		if !date.Equal(c.ModificationDate) {
			t.Errorf("preference date %v != collection date %v", date, c.ModificationDate)
		}
		if size, _ := f.prefs.CollectionSize(); size != 1 {
			t.Errorf("CollectionSize() = %d, want 1", size)
		}
		if f.notifier.Count() != 1 {
			t.Errorf("expected 1 notification, got %d", f.notifier.Count())
		}
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx := context.Background()
		s := testStation("one", "http://example.com/one.m3u")

		if _, err := f.svc.AddStation(ctx, s); err != nil {
			t.Fatalf("AddStation: %v", err)
		}
		if _, err := f.svc.AddStation(ctx, s); !errors.Is(err, shared.ErrDuplicateStation) {
			t.Errorf("duplicate uuid: expected ErrDuplicateStation, got %v", err)
		}

		other := testStation("two", "http://example.com/one.m3u")
		if _, err := f.svc.AddStation(ctx, other); !errors.Is(err, shared.ErrDuplicateStation) {
			t.Errorf("duplicate origin: expected ErrDuplicateStation, got %v", err)
		}
		if n := len(f.svc.Collection().Stations); n != 1 {
			t.Errorf("expected 1 station after rejected adds, got %d", n)
		}
		if f.notifier.Count() != 1 {
			t.Errorf("rejected adds should not notify, got %d notifications", f.notifier.Count())
		}
	})

	t.Run("rejects incomplete station", func(t *testing.T) {
		f := newFixture(t, nil)
		s := testStation("one", "")
		s.StreamURIs = nil
		if _, err := f.svc.AddStation(context.Background(), s); !errors.Is(err, shared.ErrInvalidStation) {
			t.Errorf("expected ErrInvalidStation, got %v", err)
		}
	})
}

func TestModificationDateStrictlyIncreases(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, func() time.Time { return frozen })
	ctx := context.Background()

	var last time.Time
	for i := range 5 {
		c, err := f.svc.AddStation(ctx, testStation(string(rune('a'+i)), ""))
		if err != nil {
			t.Fatalf("AddStation: %v", err)
		}
		if !c.ModificationDate.After(last) {
			t.Fatalf("commit %d: date %v not after %v", i, c.ModificationDate, last)
		}
		last = c.ModificationDate
	}

	dates := f.notifier.Dates()
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			t.Errorf("notification %d not after previous: %v <= %v", i, dates[i], dates[i-1])
		}
	}
}

func TestUpdateStation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	origin := "http://example.com/jazz.pls"

	original := testStation("Jazz", origin)
	original.NameManuallySet = true
	original.Name = "My Jazz"
	original.ImageManuallySet = true
	original.Image = "/custom/jazz.png"
	if _, err := f.svc.AddStation(ctx, original); err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	before := f.svc.Collection().ModificationDate

	fresh := testStation("Jazz Radio", origin)
	fresh.StreamURIs = []string{"http://example.com/jazz-hq"}
	fresh.StreamContent = "audio/aac"
	fresh.Image = "/fresh/jazz.png"

	c, err := f.svc.UpdateStation(ctx, fresh)
	if err != nil {
		t.Fatalf("UpdateStation: %v", err)
	}
	if len(c.Stations) != 1 {
		t.Fatalf("expected 1 station, got %d", len(c.Stations))
	}
	got := c.Stations[0]
	if got.UUID != original.UUID {
		t.Errorf("UUID = %s, want %s", got.UUID, original.UUID)
	}
	if got.Name != "My Jazz" || got.Image != "/custom/jazz.png" {
		t.Errorf("manual overrides lost: name=%q image=%q", got.Name, got.Image)
	}
	if got.StreamURI() != "http://example.com/jazz-hq" || got.StreamContent != "audio/aac" {
		t.Errorf("fresh values not applied: %+v", got)
	}
	if !c.ModificationDate.After(before) {
		t.Errorf("modification date did not advance")
	}

	if _, err := f.svc.UpdateStation(ctx, testStation("x", "http://example.com/unknown.m3u")); !errors.Is(err, shared.ErrStationNotFound) {
		t.Errorf("expected ErrStationNotFound, got %v", err)
	}
}

func TestIsNewStation(t *testing.T) {
	f := newFixture(t, nil)
	origin := "http://example.com/one.m3u"

	if !f.svc.IsNewStation(origin) {
		t.Error("expected origin to be new")
	}
	if _, err := f.svc.AddStation(context.Background(), testStation("one", origin)); err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	if f.svc.IsNewStation(origin) {
		t.Error("expected origin to be known")
	}
}

func TestCreateStationFromPlaylist(t *testing.T) {
	f := newFixture(t, nil)
	dir := t.TempDir()

	t.Run("named by playlist", func(t *testing.T) {
		path := th.MustWriteFile(t, filepath.Join(dir, "a.m3u"), []byte("#EXTM3U\n#EXTINF:-1,Radio A\nhttp://example.com/a\n"))
		s, err := f.svc.CreateStationFromPlaylist(path, "http://example.com/lists/a.m3u")
		if err != nil {
			t.Fatalf("CreateStationFromPlaylist: %v", err)
		}
		if s.Name != "Radio A" || s.StreamURI() != "http://example.com/a" {
			t.Errorf("unexpected station %+v", s)
		}
		if s.RemoteStationLocation != "http://example.com/lists/a.m3u" {
			t.Errorf("RemoteStationLocation = %q", s.RemoteStationLocation)
		}
		if !shared.IsValidID(s.UUID) {
			t.Errorf("expected fresh uuid, got %q", s.UUID)
		}
	})

	t.Run("named by url", func(t *testing.T) {
		path := th.MustWriteFile(t, filepath.Join(dir, "b.pls"), []byte("[playlist]\nFile1=http://example.com/b\n"))
		s, err := f.svc.CreateStationFromPlaylist(path, "http://example.com/lists/station-b.pls")
		if err != nil {
			t.Fatalf("CreateStationFromPlaylist: %v", err)
		}
		if s.Name != "station-b" {
			t.Errorf("Name = %q, want station-b", s.Name)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		path := th.MustWriteFile(t, filepath.Join(dir, "c.m3u"), []byte("nothing here"))
		if _, err := f.svc.CreateStationFromPlaylist(path, "http://example.com/c.m3u"); !errors.Is(err, shared.ErrMalformedPlaylist) {
			t.Errorf("expected ErrMalformedPlaylist, got %v", err)
		}
	})
}

func TestSetStationImage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	logo := "http://example.com/logo.png"

	withImage := testStation("a", "")
	withImage.RemoteImageLocation = logo
	manual := testStation("b", "")
	manual.RemoteImageLocation = logo
	manual.ImageManuallySet = true
	manual.Image = "/custom.png"
	other := testStation("c", "")

	for _, s := range []models.Station{withImage, manual, other} {
		if _, err := f.svc.AddStation(ctx, s); err != nil {
			t.Fatalf("AddStation: %v", err)
		}
	}

	src := th.MustWritePNG(t, filepath.Join(t.TempDir(), "logo.png"), 300, 150, color.RGBA{R: 255, A: 255})
	c, err := f.svc.SetStationImage(ctx, src, logo)
	if err != nil {
		t.Fatalf("SetStationImage: %v", err)
	}

	got := c.Stations[0]
	th.AssertFileExists(t, got.Image)
	th.AssertFileExists(t, got.SmallImage)
	if got.Image == got.SmallImage {
		t.Error("expected a separate thumbnail")
	}
	if filepath.Dir(got.Image) != filepath.Join(f.root, "images", got.UUID) {
		t.Errorf("image stored in %s", filepath.Dir(got.Image))
	}
	if r, g := (got.ImageColor>>16)&0xff, (got.ImageColor>>8)&0xff; r < 200 || g > 50 {
		t.Errorf("ImageColor = %#x, want a red tone", got.ImageColor)
	}
	if c.Stations[1].Image != "/custom.png" {
		t.Errorf("manual image replaced: %q", c.Stations[1].Image)
	}
	if c.Stations[2].Image != "" {
		t.Errorf("unrelated station changed: %q", c.Stations[2].Image)
	}

	if err := f.svc.ClearImagesFolder(ctx, got); err != nil {
		t.Fatalf("ClearImagesFolder: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(got.Image)); !os.IsNotExist(err) {
		t.Errorf("expected images folder removed, stat err = %v", err)
	}
}

func TestSetStationImageFailureLeavesNoFiles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	logo := "http://example.com/logo.png"

	first := testStation("a", "")
	first.RemoteImageLocation = logo
	second := testStation("b", "")
	second.RemoteImageLocation = logo
	for _, s := range []models.Station{first, second} {
		if _, err := f.svc.AddStation(ctx, s); err != nil {
			t.Fatalf("AddStation: %v", err)
		}
	}
	// A file where the second station's folder belongs makes staging fail after the first.
	th.MustWriteFile(t, filepath.Join(f.root, "images", second.UUID), []byte("blocked"))
	notified := f.notifier.Count()

	src := th.MustWritePNG(t, filepath.Join(t.TempDir(), "logo.png"), 32, 32, color.RGBA{R: 255, A: 255})
	c, err := f.svc.SetStationImage(ctx, src, logo)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(filepath.Join(f.root, "images", first.UUID)); !os.IsNotExist(err) {
		t.Errorf("expected no images stored for %s, stat err = %v", first.Name, err)
	}
	for _, s := range c.Stations {
		if s.Image != "" || s.SmallImage != "" {
			t.Errorf("station %s references an image after failure: %+v", s.Name, s)
		}
	}
	if f.notifier.Count() != notified {
		t.Error("failed image update should not commit")
	}
}

func TestClearImagesFolderSerialized(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	logo := "http://example.com/logo.png"

	s := testStation("a", "")
	s.RemoteImageLocation = logo
	if _, err := f.svc.AddStation(ctx, s); err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	src := th.MustWritePNG(t, filepath.Join(t.TempDir(), "logo.png"), 32, 32, color.RGBA{B: 255, A: 255})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.SetStationImage(ctx, src, logo); err != nil {
				t.Errorf("SetStationImage: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := f.svc.ClearImagesFolder(ctx, s); err != nil {
				t.Errorf("ClearImagesFolder: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := f.svc.ClearImagesFolder(ctx, s); err != nil {
		t.Fatalf("ClearImagesFolder: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "images", s.UUID)); !os.IsNotExist(err) {
		t.Errorf("expected images folder removed, stat err = %v", err)
	}

	f.svc.Close()
	if err := f.svc.ClearImagesFolder(ctx, s); !errors.Is(err, shared.ErrCollectionClosed) {
		t.Errorf("expected ErrCollectionClosed, got %v", err)
	}
}

func TestRemoveDefaultImageReferences(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	s := testStation("a", "")
	s.Image = DefaultImageLocation
	s.SmallImage = DefaultImageLocation
	if _, err := f.svc.AddStation(ctx, s); err != nil {
		t.Fatalf("AddStation: %v", err)
	}

	c, err := f.svc.RemoveDefaultImageReferences(ctx)
	if err != nil {
		t.Fatalf("RemoveDefaultImageReferences: %v", err)
	}
	if c.Stations[0].Image != "" || c.Stations[0].SmallImage != "" {
		t.Errorf("default references kept: %+v", c.Stations[0])
	}

	notified := f.notifier.Count()
	if _, err := f.svc.RemoveDefaultImageReferences(ctx); err != nil {
		t.Fatalf("second RemoveDefaultImageReferences: %v", err)
	}
	if f.notifier.Count() != notified {
		t.Error("no-op cleanup should not commit")
	}
}

func TestExternalWriterTriggersReload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	external := models.NewCollection()
	external.Stations = append(external.Stations, testStation("external", "http://example.com/ext.m3u"))
	external.ModificationDate = time.Now().Add(time.Hour)
	if err := f.store.Save(external); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := f.prefs.SetCollectionModificationDate(external.ModificationDate); err != nil {
		t.Fatalf("SetCollectionModificationDate: %v", err)
	}

	cached := f.svc.Collection().ModificationDate
	if !f.svc.IsNewerCollectionAvailable(cached) {
		t.Fatal("expected newer collection to be available")
	}

	c, err := f.svc.AddStation(ctx, testStation("local", "http://example.com/local.m3u"))
	if err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	if len(c.Stations) != 2 {
		t.Fatalf("expected external and local stations, got %d", len(c.Stations))
	}
	if !c.ModificationDate.After(external.ModificationDate) {
		t.Errorf("date %v should follow external date %v", c.ModificationDate, external.ModificationDate)
	}
}

func TestIsNewerCollectionAvailable(t *testing.T) {
	f := newFixture(t, nil)
	saved := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := f.prefs.SetCollectionModificationDate(saved); err != nil {
		t.Fatalf("SetCollectionModificationDate: %v", err)
	}

	tests := []struct {
		name   string
		cached time.Time
		want   bool
	}{
		{name: "saved date is later", cached: saved.Add(-time.Millisecond), want: true},
		{name: "saved date is equal", cached: saved, want: false},
		{name: "saved date is older", cached: saved.Add(time.Second), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.svc.IsNewerCollectionAvailable(tt.cached); got != tt.want {
				t.Errorf("IsNewerCollectionAvailable(%v) = %v, want %v", tt.cached, got, tt.want)
			}
		})
	}
}

func TestAdoptRestoredReachesOtherServices(t *testing.T) {
	daemon := newFixture(t, nil)
	ctx := context.Background()

	if _, err := daemon.svc.AddStation(ctx, testStation("before", "http://example.com/before.m3u")); err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	backup := th.MustReadFile(t, daemon.store.Path())
	if _, err := daemon.svc.AddStation(ctx, testStation("after", "http://example.com/after.m3u")); err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	cached := daemon.svc.Collection().ModificationDate

	restoring, err := New(Options{Store: daemon.store, Preferences: daemon.prefs})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(restoring.Close)

	th.MustWriteFile(t, daemon.store.Path(), []byte(backup))
	c, err := restoring.AdoptRestored(ctx)
	if err != nil {
		t.Fatalf("AdoptRestored: %v", err)
	}
	if len(c.Stations) != 1 || c.Stations[0].Name != "before" {
		t.Fatalf("restored collection = %+v", c.Stations)
	}
	if !c.ModificationDate.After(cached) {
		t.Errorf("restored date %v should follow %v", c.ModificationDate, cached)
	}
	saved, _ := daemon.prefs.CollectionModificationDate()
	if !saved.Equal(c.ModificationDate) {
		t.Errorf("saved date %v, want %v", saved, c.ModificationDate)
	}

	if !daemon.svc.IsNewerCollectionAvailable(cached) {
		t.Fatal("expected the daemon to see the restored collection as newer")
	}
	c, err = daemon.svc.AddStation(ctx, testStation("later", "http://example.com/later.m3u"))
	if err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	persisted, err := daemon.store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var names []string
	for _, s := range persisted.Stations {
		names = append(names, s.Name)
	}
	if len(names) != 2 || names[0] != "before" || names[1] != "later" {
		t.Errorf("persisted stations = %v, want [before later]", names)
	}
	if len(c.Stations) != 2 {
		t.Errorf("daemon collection has %d stations, want 2", len(c.Stations))
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	external := models.NewCollection()
	external.Stations = append(external.Stations, testStation("external", "http://example.com/ext.m3u"))
	if err := f.store.Save(external); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c, err := f.svc.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(c.Stations) != 1 || c.Stations[0].Name != "external" {
		t.Errorf("reloaded collection = %+v", c.Stations)
	}
	if f.notifier.Count() != 0 {
		t.Error("reload should not notify")
	}
}

func TestConcurrentMutations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			origin := "http://example.com/" + string(rune('a'+i)) + ".m3u"
			if _, err := f.svc.AddStation(ctx, testStation(origin, origin)); err != nil {
				t.Errorf("AddStation: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(f.svc.Collection().Stations); n != 20 {
		t.Errorf("expected 20 stations, got %d", n)
	}
	persisted, _ := f.store.Load()
	if len(persisted.Stations) != 20 {
		t.Errorf("expected 20 persisted stations, got %d", len(persisted.Stations))
	}
}

func TestClosedService(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.Close()
	if _, err := f.svc.AddStation(context.Background(), testStation("a", "")); !errors.Is(err, shared.ErrCollectionClosed) {
		t.Errorf("expected ErrCollectionClosed, got %v", err)
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe(1)

	now := time.Now()
	b.NotifyCollectionChanged(now)
	b.NotifyCollectionChanged(now.Add(time.Second)) // dropped, buffer full

	select {
	case got := <-ch:
		if !got.Equal(now) {
			t.Errorf("got %v, want %v", got, now)
		}
	default:
		t.Fatal("expected a notification")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after unsubscribe")
	}
	b.NotifyCollectionChanged(now)
}
