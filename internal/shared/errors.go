package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Download errors
	ErrDownloadFailed  = fmt.Errorf("download failed")
	ErrUnknownDownload = fmt.Errorf("unknown download")
	ErrIneligibleURL   = fmt.Errorf("url not eligible for download")

	// Classification and parsing errors
	ErrClassification    = fmt.Errorf("content type classification failed")
	ErrMalformedPlaylist = fmt.Errorf("malformed playlist")

	// Collection errors
	ErrDuplicateStation = fmt.Errorf("station already exists")
	ErrStationNotFound  = fmt.Errorf("station not found")
	ErrInvalidStation   = fmt.Errorf("invalid station")
	ErrCollectionClosed = fmt.Errorf("collection service closed")

	// Archive errors
	ErrEntryViolation = fmt.Errorf("archive entry outside destination")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
