package downloads

import (
	"slices"
	"strconv"
	"strings"
)

// ActiveSetEmpty is the persisted form of an empty set.
const ActiveSetEmpty = "-1"

// ActiveSet tracks download ids believed to be in flight, in submission order, and the URL
// each one was submitted for. It is not safe for concurrent use; [Manager] guards it.
type ActiveSet struct {
	ids   []int64
	byURL map[string]int64
	urls  map[int64]string
}

func NewActiveSet() *ActiveSet {
	return &ActiveSet{byURL: make(map[string]int64), urls: make(map[int64]string)}
}

// ParseActiveSet reads the persisted "id,id," form. The empty sentinel, the empty string and
// unparseable tokens all contribute nothing.
func ParseActiveSet(s string) *ActiveSet {
	set := NewActiveSet()
	if s == ActiveSetEmpty {
		return set
	}
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil || id < 0 {
			continue
		}
		set.Add(id, "")
	}
	return set
}

// String returns the persisted form: each id followed by a comma, or [ActiveSetEmpty].
func (s *ActiveSet) String() string {
	if len(s.ids) == 0 {
		return ActiveSetEmpty
	}
	var sb strings.Builder
	for _, id := range s.ids {
		sb.WriteString(strconv.FormatInt(id, 10))
		sb.WriteByte(',')
	}
	return sb.String()
}

// Add tracks id, associating it with url when url is non-empty.
func (s *ActiveSet) Add(id int64, url string) {
	if !slices.Contains(s.ids, id) {
		s.ids = append(s.ids, id)
	}
	if url != "" {
		s.byURL[url] = id
		s.urls[id] = url
	}
}

// Remove stops tracking id and reports whether it was tracked.
func (s *ActiveSet) Remove(id int64) bool {
	i := slices.Index(s.ids, id)
	if i < 0 {
		return false
	}
	s.ids = slices.Delete(s.ids, i, i+1)
	if url, ok := s.urls[id]; ok {
		delete(s.urls, id)
		if s.byURL[url] == id {
			delete(s.byURL, url)
		}
	}
	return true
}

func (s *ActiveSet) Contains(id int64) bool {
	return slices.Contains(s.ids, id)
}

// Lookup returns the id tracked for url.
func (s *ActiveSet) Lookup(url string) (int64, bool) {
	id, ok := s.byURL[url]
	return id, ok
}

// URL returns the URL id was submitted for, or "" when it is not known.
func (s *ActiveSet) URL(id int64) string {
	return s.urls[id]
}

func (s *ActiveSet) IDs() []int64 {
	return slices.Clone(s.ids)
}

func (s *ActiveSet) Len() int {
	return len(s.ids)
}
