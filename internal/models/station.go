package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/stationsync/internal/shared"
)

// Station is a single streaming-audio source descriptor.
type Station struct {
	UUID                    string    `json:"uuid"`
	Starred                 bool      `json:"starred"`
	Name                    string    `json:"name"`
	NameManuallySet         bool      `json:"nameManuallySet"`
	StreamURIs              []string  `json:"streamUris"`
	Stream                  int       `json:"stream"` // index of the selected stream URI
	StreamContent           string    `json:"streamContent"`
	Homepage                string    `json:"homepage"`
	Image                   string    `json:"image"`
	SmallImage              string    `json:"smallImage"`
	ImageColor              int       `json:"imageColor"`
	ImageManuallySet        bool      `json:"imageManuallySet"`
	RemoteImageLocation     string    `json:"remoteImageLocation"`
	RemoteStationLocation   string    `json:"remoteStationLocation"`
	ModificationDate        time.Time `json:"modificationDate"`
	IsPlaying               bool      `json:"isPlaying"`
	RadioBrowserStationUUID string    `json:"radioBrowserStationUuid"`
	RadioBrowserChangeUUID  string    `json:"radioBrowserChangeUuid"`
	Bitrate                 int       `json:"bitrate"`
	Codec                   string    `json:"codec"`
}

// NewStation returns a station with a fresh UUID and the sentinel defaults.
func NewStation() Station {
	return Station{
		UUID:             shared.GenerateID(),
		StreamContent:    MimeTypeUnsupported,
		ImageColor:       -1,
		ModificationDate: shared.DefaultDate,
	}
}

// StreamURI returns the currently selected stream, or "" when none is selected.
func (s Station) StreamURI() string {
	if s.Stream < 0 || s.Stream >= len(s.StreamURIs) {
		return ""
	}
	return s.StreamURIs[s.Stream]
}

// IsValid checks that the station carries the minimum data needed to be played.
func (s Station) IsValid() bool {
	return s.UUID != "" &&
		s.Name != "" &&
		s.StreamURI() != "" &&
		!s.ModificationDate.Equal(shared.DefaultDate) &&
		s.StreamContent != MimeTypeUnsupported
}

// Clone returns a deep copy of the station.
func (s Station) Clone() Station {
	c := s
	if s.StreamURIs != nil {
		c.StreamURIs = append([]string(nil), s.StreamURIs...)
	}
	return c
}

// MergeFrom applies freshly fetched values onto s and returns the result.
//
// The UUID and user state (starred, playing) of s are kept. A manually set name or image
// survives. Every other field takes the fresh value whenever the source carried one; a source
// that does not describe a field (a playlist has no icon) leaves it as it was.
func (s Station) MergeFrom(fresh Station) Station {
	m := s.Clone()

	if fresh.Name != "" && !s.NameManuallySet {
		m.Name = fresh.Name
	}
	if len(fresh.StreamURIs) > 0 {
		m.StreamURIs = append([]string(nil), fresh.StreamURIs...)
		m.Stream = fresh.Stream
	}
	if fresh.StreamContent != "" {
		m.StreamContent = fresh.StreamContent
	}
	if !s.ImageManuallySet {
		m.Image = pick(fresh.Image, s.Image)
		m.SmallImage = pick(fresh.SmallImage, s.SmallImage)
		m.RemoteImageLocation = pick(fresh.RemoteImageLocation, s.RemoteImageLocation)
		if fresh.ImageColor != -1 && fresh.ImageColor != 0 {
			m.ImageColor = fresh.ImageColor
		}
	}
	m.Homepage = pick(fresh.Homepage, s.Homepage)
	m.RemoteStationLocation = pick(fresh.RemoteStationLocation, s.RemoteStationLocation)
	m.RadioBrowserStationUUID = pick(fresh.RadioBrowserStationUUID, s.RadioBrowserStationUUID)
	m.RadioBrowserChangeUUID = pick(fresh.RadioBrowserChangeUUID, s.RadioBrowserChangeUUID)
	m.Codec = pick(fresh.Codec, s.Codec)
	if fresh.Bitrate != 0 {
		m.Bitrate = fresh.Bitrate
	}
	if fresh.ModificationDate.After(m.ModificationDate) {
		m.ModificationDate = fresh.ModificationDate
	}
	return m
}

func pick(fresh, current string) string {
	if fresh != "" {
		return fresh
	}
	return current
}

func (s Station) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", s.Name)
	if uri := s.StreamURI(); uri != "" {
		fmt.Fprintf(&sb, "Stream: %s\n", uri)
	}
	fmt.Fprintf(&sb, "Last Update: %s\n", s.ModificationDate.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Content-Type: %s\n", s.StreamContent)
	return sb.String()
}
