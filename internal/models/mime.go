package models

import "slices"

// MimeTypeUnsupported marks content that could not be classified.
const MimeTypeUnsupported = "unsupported"

// MIME types that identify downloaded files and probed streams.
var (
	MimeTypesM3U     = []string{"application/mpegurl", "application/x-mpegurl", "audio/mpegurl", "audio/x-mpegurl"}
	MimeTypesPLS     = []string{"audio/x-scpls", "application/pls+xml"}
	MimeTypesHLS     = []string{"application/vnd.apple.mpegurl", "application/vnd.apple.mpegurl.audio"}
	MimeTypesImage   = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}
	MimeTypesFavicon = []string{"image/x-icon", "image/vnd.microsoft.icon"}
	MimeTypesMPEG    = []string{"audio/mpeg"}
	MimeTypesOGG     = []string{"audio/ogg", "application/ogg", "audio/opus"}
	MimeTypesAAC     = []string{"audio/aac", "audio/aacp"}
	MimeTypesFLAC    = []string{"audio/flac", "audio/x-flac"}
)

// IsPlaylist reports whether mime is an M3U or PLS playlist type.
func IsPlaylist(mime string) bool {
	return slices.Contains(MimeTypesM3U, mime) || slices.Contains(MimeTypesPLS, mime)
}

// IsPLS reports whether mime is a PLS playlist type.
func IsPLS(mime string) bool {
	return slices.Contains(MimeTypesPLS, mime)
}

// IsImage reports whether mime is a station image or favicon type.
func IsImage(mime string) bool {
	return slices.Contains(MimeTypesImage, mime) || slices.Contains(MimeTypesFavicon, mime)
}

// IsStream reports whether mime is a playable audio stream type.
func IsStream(mime string) bool {
	for _, set := range [][]string{MimeTypesMPEG, MimeTypesOGG, MimeTypesAAC, MimeTypesFLAC, MimeTypesHLS} {
		if slices.Contains(set, mime) {
			return true
		}
	}
	return false
}
