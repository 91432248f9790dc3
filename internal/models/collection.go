package models

import (
	"fmt"
	"strings"
	"time"
)

// CurrentCollectionVersion is the schema number written with every collection.
const CurrentCollectionVersion = 1

// Collection is the ordered set of stations; order is the user-visible display order.
type Collection struct {
	Version          int       `json:"version"`
	Stations         []Station `json:"stations"`
	ModificationDate time.Time `json:"modificationDate"`
}

// NewCollection returns an empty collection at the current schema version.
func NewCollection() Collection {
	return Collection{Version: CurrentCollectionVersion, Stations: []Station{}}
}

// Clone returns a deep copy of the collection.
func (c Collection) Clone() Collection {
	out := Collection{Version: c.Version, ModificationDate: c.ModificationDate}
	out.Stations = make([]Station, len(c.Stations))
	for i, s := range c.Stations {
		out.Stations[i] = s.Clone()
	}
	return out
}

// IndexOf returns the position of the station matching pred, or -1.
func (c Collection) IndexOf(pred func(Station) bool) int {
	for i, s := range c.Stations {
		if pred(s) {
			return i
		}
	}
	return -1
}

// ByUUID returns a predicate matching a station's UUID.
func ByUUID(uuid string) func(Station) bool {
	return func(s Station) bool { return s.UUID == uuid }
}

// ByRemoteStationLocation returns a predicate matching the playlist URL a station came from.
func ByRemoteStationLocation(url string) func(Station) bool {
	return func(s Station) bool { return url != "" && s.RemoteStationLocation == url }
}

func (c Collection) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Format version: %d\n", c.Version)
	fmt.Fprintf(&sb, "Number of stations in collection: %d\n\n", len(c.Stations))
	for _, s := range c.Stations {
		sb.WriteString(s.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
