package downloads

import (
	"fmt"

	"github.com/desertthunder/stationsync/internal/shared"
)

// DownloadFailure is a host-reported failure of one download. It is terminal for that id.
type DownloadFailure struct {
	ID       int64
	FileName string
	Reason   int
}

func (e *DownloadFailure) Error() string {
	return fmt.Sprintf("%s: %s (%d)", shared.ErrDownloadFailed, e.FileName, e.Reason)
}

func (e *DownloadFailure) Unwrap() error {
	return shared.ErrDownloadFailed
}

// ErrorReporter surfaces download failures to the user.
type ErrorReporter interface {
	ReportDownloadFailure(failure *DownloadFailure)
}

// ErrorReporterFunc adapts a function to [ErrorReporter].
type ErrorReporterFunc func(failure *DownloadFailure)

func (f ErrorReporterFunc) ReportDownloadFailure(failure *DownloadFailure) { f(failure) }
