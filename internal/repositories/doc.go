// Package repositories implements persistence for the station store.
//
// Key Implementations:
//   - [Preferences] : SQLite key/value table holding the application preferences
//     (active download ids, collection freshness token, radio browser host)
//   - [CollectionStore] : the collection JSON file, written atomically
//   - [DownloadLogRepository] : history of finished downloads
//
// The collection modification date stored in [Preferences] is the freshness token that tells
// readers whether their in-memory copy of the collection is stale.
package repositories
