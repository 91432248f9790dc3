// Package models defines the station collection data model and the download request types.
//
// The package contains two groups of types:
//
// 1. Collection entities, persisted as JSON in the station store:
//   - [Station] : one streaming-audio source with its candidate stream URIs and images
//   - [Collection] : the ordered list of stations plus schema version and modification date
//
// 2. Download vocabulary shared by the orchestration and transport layers:
//   - [DownloadRequest] : a batch of URIs of one [Kind] with a [NetworkConstraint]
//   - MIME type sets used to route completed downloads
//
// A station is identified by its UUID once created, but completed playlist downloads are
// matched to existing stations by [Station.RemoteStationLocation], never by UUID.
package models
