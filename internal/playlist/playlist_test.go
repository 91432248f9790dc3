package playlist

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/stationsync/internal/shared"
)

func TestParseM3U(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantURIs  []string
		wantTitle string
	}{
		{
			name:     "plain",
			input:    "http://example.com/a.mp3\nhttp://example.com/b.mp3\n",
			wantURIs: []string{"http://example.com/a.mp3", "http://example.com/b.mp3"},
		},
		{
			name:      "extended",
			input:     "#EXTM3U\n#EXTINF:-1,Radio Eins\nhttps://example.com/live\n",
			wantURIs:  []string{"https://example.com/live"},
			wantTitle: "Radio Eins",
		},
		{
			name:      "attributes and comments",
			input:     "\ufeff#EXTM3U\n# a comment\n#EXTINF:-1 tvg-logo=\"x.png\",Jazz FM\r\nhttp://jazz.example.com/stream\r\n/local/file.mp3\n",
			wantURIs:  []string{"http://jazz.example.com/stream"},
			wantTitle: "Jazz FM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl, err := Parse(strings.NewReader(tt.input), FormatM3U)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			got := pl.URIs()
			if len(got) != len(tt.wantURIs) {
				t.Fatalf("URIs() = %v, want %v", got, tt.wantURIs)
			}
			for i := range got {
				if got[i] != tt.wantURIs[i] {
					t.Errorf("URIs()[%d] = %q, want %q", i, got[i], tt.wantURIs[i])
				}
			}
			if pl.Title() != tt.wantTitle {
				t.Errorf("Title() = %q, want %q", pl.Title(), tt.wantTitle)
			}
		})
	}
}

func TestParsePLS(t *testing.T) {
	input := `[playlist]
File2=http://example.com/backup
Title2=Backup
File1=http://example.com/main
Title1=Main Stream
Length1=-1
NumberOfEntries=2
Version=2
`
	pl, err := Parse(strings.NewReader(input), FormatPLS)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pl.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(pl.Entries))
	}
	if pl.Entries[0].URI != "http://example.com/main" || pl.Entries[0].Title != "Main Stream" {
		t.Errorf("first entry = %+v", pl.Entries[0])
	}
	if pl.Title() != "Main Stream" {
		t.Errorf("Title() = %q", pl.Title())
	}
}

func TestParseMalformed(t *testing.T) {
	for _, format := range []Format{FormatM3U, FormatPLS} {
		t.Run(format.String(), func(t *testing.T) {
			_, err := Parse(strings.NewReader("<html>not a playlist</html>"), format)
			if !errors.Is(err, shared.ErrMalformedPlaylist) {
				t.Errorf("expected ErrMalformedPlaylist, got %v", err)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		content string
		name    string
		want    Format
	}{
		{"[playlist]\nFile1=http://a", "x.m3u", FormatPLS},
		{"#EXTM3U\nhttp://a", "x.pls", FormatM3U},
		{"File1=http://a", "station.PLS", FormatPLS},
		{"http://a", "station", FormatM3U},
	}
	for _, tt := range tests {
		if got := DetectFormat([]byte(tt.content), tt.name); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %v, want %v", tt.content, tt.name, got, tt.want)
		}
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.pls")
	if err := os.WriteFile(path, []byte("[playlist]\nFile1=http://example.com/s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pl, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if pl.Format != FormatPLS {
		t.Errorf("Format = %v, want pls", pl.Format)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.m3u")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	pl := &Playlist{Entries: []Entry{
		{URI: "http://example.com/one", Title: "One", Length: -1},
		{URI: "http://example.com/two", Title: "Two", Length: -1},
	}}

	for _, format := range []Format{FormatM3U, FormatPLS} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, pl, format); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := Parse(&buf, format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(got.Entries) != 2 || got.Entries[1].Title != "Two" {
				t.Errorf("entries = %+v", got.Entries)
			}
		})
	}
}

func TestNameFromURL(t *testing.T) {
	tests := map[string]string{
		"http://example.com/stations/radio-eins.m3u":   "radio-eins",
		"http://example.com/listen.pls?session=abc":    "listen",
		"http://example.com/":                          "",
		"https://example.com/path/to/Station%20One.m3u": "Station One",
	}
	for in, want := range tests {
		if got := NameFromURL(in); got != want {
			t.Errorf("NameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
