package repositories

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/stationsync/internal/shared"
)

// Preference keys.
const (
	KeyRadioBrowserAPI            = "radio_browser_api"
	KeyActiveDownloads            = "active_downloads"
	KeyCollectionModificationDate = "collection_modification_date"
	KeyCollectionSize             = "collection_size"
	KeyLastUpdateCollection       = "last_update_collection"
	KeyDownloadOverMobile         = "download_over_mobile"
)

// ActiveDownloadsEmpty is stored when no downloads are being tracked.
const ActiveDownloadsEmpty = "-1"

// DefaultRadioBrowserAPI is used until a server has been resolved.
const DefaultRadioBrowserAPI = "all.api.radio-browser.info"

// Preferences is a typed view over the preferences table.
type Preferences struct {
	db *sql.DB
}

// NewPreferences creates a new [Preferences] with the given database connection
func NewPreferences(db *sql.DB) *Preferences {
	return &Preferences{db: db}
}

// String returns the value stored under key, or def when the key is absent.
func (p *Preferences) String(key, def string) (string, error) {
	var value string
	err := p.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, nil
}

// SetString stores value under key, replacing any previous value.
func (p *Preferences) SetString(key, value string) error {
	query := `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := p.db.Exec(query, key, value, time.Now()); err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// Int returns the integer stored under key. Absent or malformed values yield def.
func (p *Preferences) Int(key string, def int) (int, error) {
	s, err := p.String(key, "")
	if err != nil || s == "" {
		return def, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, nil
	}
	return n, nil
}

func (p *Preferences) SetInt(key string, value int) error {
	return p.SetString(key, strconv.Itoa(value))
}

// Bool returns the boolean stored under key. Absent or malformed values yield def.
func (p *Preferences) Bool(key string, def bool) (bool, error) {
	s, err := p.String(key, "")
	if err != nil || s == "" {
		return def, err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def, nil
	}
	return b, nil
}

func (p *Preferences) SetBool(key string, value bool) error {
	return p.SetString(key, strconv.FormatBool(value))
}

// Date returns the RFC 2822 date stored under key, or [shared.DefaultDate].
func (p *Preferences) Date(key string) (time.Time, error) {
	s, err := p.String(key, "")
	if err != nil || s == "" {
		return shared.DefaultDate, err
	}
	t, _ := shared.ParseRFC2822(s)
	return t, nil
}

func (p *Preferences) SetDate(key string, t time.Time) error {
	return p.SetString(key, shared.FormatRFC2822(t))
}

func (p *Preferences) RadioBrowserAPI() (string, error) {
	return p.String(KeyRadioBrowserAPI, DefaultRadioBrowserAPI)
}

func (p *Preferences) SetRadioBrowserAPI(host string) error {
	return p.SetString(KeyRadioBrowserAPI, host)
}

// ActiveDownloads returns the raw persisted id list ("id,id," or [ActiveDownloadsEmpty]).
func (p *Preferences) ActiveDownloads() (string, error) {
	return p.String(KeyActiveDownloads, ActiveDownloadsEmpty)
}

func (p *Preferences) SetActiveDownloads(ids string) error {
	return p.SetString(KeyActiveDownloads, ids)
}

// CollectionModificationDate returns the freshness token of the persisted collection.
func (p *Preferences) CollectionModificationDate() (time.Time, error) {
	return p.Date(KeyCollectionModificationDate)
}

func (p *Preferences) SetCollectionModificationDate(t time.Time) error {
	return p.SetDate(KeyCollectionModificationDate, t)
}

// CollectionSize returns the number of stations last committed, or -1 if never written.
func (p *Preferences) CollectionSize() (int, error) {
	return p.Int(KeyCollectionSize, -1)
}

func (p *Preferences) SetCollectionSize(n int) error {
	return p.SetInt(KeyCollectionSize, n)
}

// LastUpdateCollection returns when images were last refreshed for the whole collection.
func (p *Preferences) LastUpdateCollection() (time.Time, error) {
	return p.Date(KeyLastUpdateCollection)
}

func (p *Preferences) SetLastUpdateCollection(t time.Time) error {
	return p.SetDate(KeyLastUpdateCollection, t)
}

func (p *Preferences) DownloadOverMobile() (bool, error) {
	return p.Bool(KeyDownloadOverMobile, false)
}

func (p *Preferences) SetDownloadOverMobile(v bool) error {
	return p.SetBool(KeyDownloadOverMobile, v)
}
