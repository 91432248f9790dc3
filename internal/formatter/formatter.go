// package formatter exports the station collection to playlist files (M3U, PLS), CSV and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/playlist"
	"github.com/desertthunder/stationsync/internal/shared"
)

// Format names accepted by [Export] and [WriteExport].
const (
	FormatM3U  = "m3u"
	FormatPLS  = "pls"
	FormatCSV  = "csv"
	FormatText = "txt"
)

// ToPlaylist converts the playable stations of c into a playlist, one entry per selected stream.
// Stations without a selected stream are skipped.
func ToPlaylist(c models.Collection) *playlist.Playlist {
	pl := &playlist.Playlist{}
	for _, station := range c.Stations {
		uri := station.StreamURI()
		if uri == "" {
			continue
		}
		pl.Entries = append(pl.Entries, playlist.Entry{URI: uri, Title: station.Name, Length: -1})
	}
	return pl
}

// ExportToM3U renders the collection as an extended M3U playlist.
func ExportToM3U(c models.Collection) ([]byte, error) {
	var buf bytes.Buffer
	if err := playlist.Write(&buf, ToPlaylist(c), playlist.FormatM3U); err != nil {
		return nil, fmt.Errorf("failed to write M3U: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToPLS renders the collection as a PLS playlist.
func ExportToPLS(c models.Collection) ([]byte, error) {
	var buf bytes.Buffer
	if err := playlist.Write(&buf, ToPlaylist(c), playlist.FormatPLS); err != nil {
		return nil, fmt.Errorf("failed to write PLS: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToCSV converts the collection to CSV with columns: UUID, Name, Stream, Content-Type, Homepage, Starred, Modified
func ExportToCSV(c models.Collection) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"UUID", "Name", "Stream", "Content-Type", "Homepage", "Starred", "Modified"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, station := range c.Stations {
		record := []string{
			station.UUID,
			station.Name,
			station.StreamURI(),
			station.StreamContent,
			station.Homepage,
			strconv.FormatBool(station.Starred),
			station.ModificationDate.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToText converts the collection to a plain text listing.
func ExportToText(c models.Collection) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Stations (version %d)\n", c.Version)
	fmt.Fprintf(&buf, "Number of stations in collection: %d\n\n", len(c.Stations))

	for i, station := range c.Stations {
		marker := ""
		if station.Starred {
			marker = " *"
		}
		fmt.Fprintf(&buf, "%d. %s%s\n", i+1, station.Name, marker)
		if uri := station.StreamURI(); uri != "" {
			fmt.Fprintf(&buf, "   %s (%s)\n", uri, station.StreamContent)
		}
	}

	return buf.Bytes(), nil
}

// Export renders the collection in the named format.
func Export(c models.Collection, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatM3U, "m3u8":
		return ExportToM3U(c)
	case FormatPLS:
		return ExportToPLS(c)
	case FormatCSV:
		return ExportToCSV(c)
	case FormatText, "text":
		return ExportToText(c)
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", shared.ErrInvalidArgument, format)
	}
}

// FormatFromPath guesses the export format from a file extension, defaulting to M3U.
func FormatFromPath(path string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case FormatPLS, FormatCSV, FormatText:
		return ext
	default:
		return FormatM3U
	}
}

// WriteExport writes the collection to path in the given format. An empty format is guessed
// from the file extension.
func WriteExport(c models.Collection, path, format string) error {
	if path == "" {
		return fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}
	if format == "" {
		format = FormatFromPath(path)
	}

	data, err := Export(c, format)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}
