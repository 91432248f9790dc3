package models

import "time"

// Kind is the category of a download request; it decides network constraints.
type Kind int

const (
	KindPlaylist Kind = iota
	KindImage
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindPlaylist:
		return "playlist"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	default:
		return ""
	}
}

// NetworkConstraint is a bitmask of networks a download may use.
type NetworkConstraint int

const (
	NetworkMobile NetworkConstraint = 1 << iota
	NetworkWiFi

	NetworkAny = NetworkMobile | NetworkWiFi
)

// Allows reports whether n includes network.
func (n NetworkConstraint) Allows(network NetworkConstraint) bool {
	return n&network != 0
}

func (n NetworkConstraint) String() string {
	switch n {
	case NetworkAny:
		return "any"
	case NetworkWiFi:
		return "wifi"
	case NetworkMobile:
		return "mobile"
	default:
		return "none"
	}
}

// DownloadRequest is a batch of URIs of the same kind.
type DownloadRequest struct {
	URIs    []string
	Kind    Kind
	Network NetworkConstraint
}

// Outcome is how a finished download was handled.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
)

// DownloadRecord is one row of download history.
type DownloadRecord struct {
	DownloadID  int64     `json:"downloadId"`
	ContentType string    `json:"contentType,omitempty"`
	OriginURL   string    `json:"originUrl"`
	Outcome     Outcome   `json:"outcome"`
	Reason      int       `json:"reason,omitempty"`
	FinishedAt  time.Time `json:"finishedAt"`
}
