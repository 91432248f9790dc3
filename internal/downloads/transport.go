package downloads

import (
	"context"

	"github.com/desertthunder/stationsync/internal/models"
)

// State is the host-reported state of one download.
type State int

const (
	StateUnknown State = iota
	StatePending
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Failure reasons reported alongside [StateFailed]. HTTP failures report the status code instead.
const (
	ReasonNone              = 0
	ReasonUnknown           = 1000
	ReasonFileError         = 1001
	ReasonHTTPDataError     = 1004
	ReasonTooManyRedirects  = 1005
	ReasonCannotResume      = 1008
	ReasonNetworkNotAllowed = 1009
)

// Request asks the host to fetch URI into DestinationDir under Title.
type Request struct {
	URI            string
	Title          string
	DestinationDir string
	Kind           models.Kind
	Network        models.NetworkConstraint
}

// Status is what the host knows about a download.
type Status struct {
	State     State
	Reason    int
	LocalPath string
	OriginURI string
	Title     string
}

// Transport is the host download service. Downloads complete asynchronously; the host reports
// each finished id back through [Manager.OnDownloadComplete].
type Transport interface {
	Submit(ctx context.Context, req Request) (int64, error)
	Query(ctx context.Context, id int64) (Status, error)
	Remove(ctx context.Context, id int64) error
}
