// Package playlist reads and writes station playlist files (M3U, extended M3U and PLS).
package playlist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/desertthunder/stationsync/internal/shared"
)

// Format is a playlist file format.
type Format int

const (
	FormatM3U Format = iota
	FormatPLS
)

func (f Format) String() string {
	if f == FormatPLS {
		return "pls"
	}
	return "m3u"
}

// Entry is one stream in a playlist.
type Entry struct {
	URI   string
	Title string
	// Length in seconds; -1 for live streams.
	Length int
}

// Playlist is the parsed content of a playlist file.
type Playlist struct {
	Format  Format
	Entries []Entry
}

// Title returns the first non-empty entry title.
func (p *Playlist) Title() string {
	for _, e := range p.Entries {
		if e.Title != "" {
			return e.Title
		}
	}
	return ""
}

// URIs returns the entry URIs in file order.
func (p *Playlist) URIs() []string {
	uris := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		uris = append(uris, e.URI)
	}
	return uris
}

// DetectFormat sniffs the format from content, falling back to the file extension of name.
func DetectFormat(content []byte, name string) Format {
	head := bytes.ToLower(bytes.TrimSpace(content))
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	switch {
	case bytes.HasPrefix(head, []byte("[playlist]")):
		return FormatPLS
	case bytes.HasPrefix(head, []byte("#extm3u")):
		return FormatM3U
	}
	if strings.EqualFold(filepath.Ext(name), ".pls") {
		return FormatPLS
	}
	return FormatM3U
}

// ParseFile reads and parses the playlist at filename.
func ParseFile(filename string) (*Playlist, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}
	return Parse(bytes.NewReader(data), DetectFormat(data, filename))
}

// Parse reads a playlist of the given format. Only http(s) stream entries are kept;
// a playlist without any is reported as [shared.ErrMalformedPlaylist].
func Parse(r io.Reader, format Format) (*Playlist, error) {
	var (
		pl  *Playlist
		err error
	)
	if format == FormatPLS {
		pl, err = parsePLS(r)
	} else {
		pl, err = parseM3U(r)
	}
	if err != nil {
		return nil, err
	}
	if len(pl.Entries) == 0 {
		return nil, fmt.Errorf("%w: no stream entries", shared.ErrMalformedPlaylist)
	}
	return pl, nil
}

// parseM3U handles plain and extended M3U. An #EXTINF line describes the URI that follows it.
func parseM3U(r io.Reader) (*Playlist, error) {
	pl := &Playlist{Format: FormatM3U}
	pending := Entry{Length: -1}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		switch {
		case line == "":
		case strings.HasPrefix(strings.ToUpper(line), "#EXTINF:"):
			info := line[len("#EXTINF:"):]
			length, title, _ := strings.Cut(info, ",")
			if n, err := strconv.Atoi(strings.TrimSpace(stripAttributes(length))); err == nil {
				pending.Length = n
			}
			pending.Title = strings.TrimSpace(title)
		case strings.HasPrefix(line, "#"):
		case isStreamURI(line):
			pending.URI = line
			pl.Entries = append(pl.Entries, pending)
			pending = Entry{Length: -1}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}
	return pl, nil
}

// parsePLS handles the INI-style PLS format. Entries are ordered by their index, not file order.
func parsePLS(r io.Reader) (*Playlist, error) {
	pl := &Playlist{Format: FormatPLS}
	byIndex := map[int]*Entry{}
	var order []int

	entry := func(idx int) *Entry {
		if e, ok := byIndex[idx]; ok {
			return e
		}
		e := &Entry{Length: -1}
		byIndex[idx] = e
		order = append(order, idx)
		return e
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		for _, field := range []string{"file", "title", "length"} {
			if !strings.HasPrefix(key, field) {
				continue
			}
			idx, err := strconv.Atoi(key[len(field):])
			if err != nil {
				break
			}
			e := entry(idx)
			switch field {
			case "file":
				e.URI = value
			case "title":
				e.Title = value
			case "length":
				if n, err := strconv.Atoi(value); err == nil {
					e.Length = n
				}
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	slices.Sort(order)
	for _, idx := range order {
		if e := byIndex[idx]; isStreamURI(e.URI) {
			pl.Entries = append(pl.Entries, *e)
		}
	}
	return pl, nil
}

// Write encodes pl in the given format.
func Write(w io.Writer, pl *Playlist, format Format) error {
	var sb strings.Builder
	switch format {
	case FormatPLS:
		sb.WriteString("[playlist]\n")
		for i, e := range pl.Entries {
			idx := i + 1
			fmt.Fprintf(&sb, "File%d=%s\n", idx, e.URI)
			fmt.Fprintf(&sb, "Title%d=%s\n", idx, e.Title)
			fmt.Fprintf(&sb, "Length%d=%d\n", idx, e.Length)
		}
		fmt.Fprintf(&sb, "NumberOfEntries=%d\n", len(pl.Entries))
		sb.WriteString("Version=2\n")
	default:
		sb.WriteString("#EXTM3U\n")
		for _, e := range pl.Entries {
			fmt.Fprintf(&sb, "#EXTINF:%d,%s\n", e.Length, e.Title)
			sb.WriteString(e.URI + "\n")
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// NameFromURL derives a station name from the last path segment of a playlist URL.
func NameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func isStreamURI(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// stripAttributes drops key="value" attributes some extended M3U writers put after the length.
func stripAttributes(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
