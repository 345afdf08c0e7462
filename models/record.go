// Package models defines the tracked manga record.
package models

import (
	"hash/crc32"
	"slices"
	"strings"
	"sync"

	"github.com/aluiziolira/go-manga-bookmarks/parser"
	"github.com/aluiziolira/go-manga-bookmarks/romanize"
)

// MarkerValue is the title and URL of the terminator record.
const MarkerValue = "MARKER"

// ErrEmptyTitle is returned when a record would be built without a title.
var ErrEmptyTitle = parser.ErrEmptyTitle

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Record is one tracked series as last seen. Raw fields never change after
// construction; BaseURL and RomanizedTitle are derived on first use and
// memoized, so a *Record is safe to share between goroutines.
type Record struct {
	id             uint32
	title          string
	urlWithChapter string
	chapter        string
	lastModified   string
	notes          string
	tags           []string

	romanizer romanize.Romanizer

	baseOnce sync.Once
	baseURL  string

	romajiOnce sync.Once
	romanized  string
}

// Fields is the flat, serializable view of a record in column order.
type Fields struct {
	Title          string   `csv:"title" json:"title"`
	URLWithChapter string   `csv:"url_with_chapter" json:"url_with_chapter"`
	Chapter        string   `csv:"chapter" json:"chapter"`
	LastModified   string   `csv:"last_modified" json:"last_modified"`
	Notes          string   `csv:"notes" json:"notes"`
	Tags           []string `csv:"tags" json:"tags"`
	BaseURL        string   `csv:"url" json:"url"`
	RomanizedTitle string   `csv:"romanized_title" json:"romanized_title"`
}

// New builds a record from its required elements. seed is an external id
// such as a hash of the URL; it is never used as a merge key.
func New(title, url string, seed uint32, rz romanize.Romanizer) (*Record, error) {
	title = parser.Sanitize(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	url = strings.TrimSpace(url)
	_, chapter := parser.NormalizeURL(url)
	return &Record{
		id:             seed,
		title:          title,
		urlWithChapter: url,
		chapter:        parser.Sanitize(chapter),
		romanizer:      rz,
	}, nil
}

// FromBookmark builds a fresh record from a bookmark leaf.
func FromBookmark(title, uri string, lastModifiedMicros int64, rz romanize.Romanizer) (*Record, error) {
	r, err := New(title, uri, Seed(uri), rz)
	if err != nil {
		return nil, err
	}
	r.lastModified = parser.FormatMicros(lastModifiedMicros)
	return r, nil
}

// FromFields rebuilds a record from a snapshot or storage row. A non-empty
// BaseURL or RomanizedTitle is taken as the cached derived value; an empty
// chapter is derived from the URL.
func FromFields(f Fields, rz romanize.Romanizer) (*Record, error) {
	r, err := New(f.Title, f.URLWithChapter, Seed(f.URLWithChapter), rz)
	if err != nil {
		return nil, err
	}
	if chapter := parser.Sanitize(f.Chapter); chapter != "" {
		r.chapter = chapter
	}
	r.lastModified = strings.TrimSpace(f.LastModified)
	r.notes = parser.Sanitize(f.Notes)
	r.tags = sanitizeTags(f.Tags)

	if base := strings.TrimSpace(f.BaseURL); base != "" {
		r.baseOnce.Do(func() { r.baseURL = base })
	}
	if romanized := parser.Sanitize(f.RomanizedTitle); romanized != "" {
		r.romajiOnce.Do(func() { r.romanized = romanized })
	}
	return r, nil
}

// Marker returns the terminator written between unique and duplicate records.
func Marker() *Record {
	return &Record{
		title:          MarkerValue,
		urlWithChapter: MarkerValue,
		chapter:        parser.NoChapter,
	}
}

// Seed hashes a URL into a record id.
func Seed(url string) uint32 {
	return crc32.Checksum([]byte(strings.TrimSpace(url)), castagnoli)
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = parser.Sanitize(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func (r *Record) ID() uint32             { return r.id }
func (r *Record) Title() string          { return r.title }
func (r *Record) URLWithChapter() string { return r.urlWithChapter }
func (r *Record) Chapter() string        { return r.chapter }
func (r *Record) LastModified() string   { return r.lastModified }
func (r *Record) Notes() string          { return r.notes }

// Tags returns a copy of the tag list.
func (r *Record) Tags() []string {
	return slices.Clone(r.tags)
}

// TagColumn returns the tags joined into one column value.
func (r *Record) TagColumn() string {
	return parser.JoinTags(r.tags)
}

// BaseURL returns the URL with its chapter suffix removed.
func (r *Record) BaseURL() string {
	r.baseOnce.Do(func() {
		r.baseURL, _ = parser.NormalizeURL(r.urlWithChapter)
	})
	return r.baseURL
}

// RomanizedTitle returns the romaji key for the title. Titles without
// Japanese script are their own key.
func (r *Record) RomanizedTitle() string {
	r.romajiOnce.Do(func() {
		r.romanized = r.title
		if r.romanizer == nil || !romanize.NeedsRomanization(r.title) {
			return
		}
		if out := parser.Sanitize(r.romanizer.Romanize(r.title)); out != "" {
			r.romanized = out
		}
	})
	return r.romanized
}

// Equal reports whether both records carry the same raw fields.
func (r *Record) Equal(other *Record) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	return r.title == other.title &&
		r.urlWithChapter == other.urlWithChapter &&
		r.chapter == other.chapter &&
		r.lastModified == other.lastModified &&
		r.notes == other.notes &&
		slices.Equal(r.tags, other.tags)
}

// IsMarker reports whether r is a terminator record.
func (r *Record) IsMarker() bool {
	return r.title == MarkerValue && r.urlWithChapter == MarkerValue
}

// LastModifiedMicros re-derives the epoch from the stored timestamp.
func (r *Record) LastModifiedMicros() (int64, error) {
	return parser.EpochMicros(r.lastModified)
}

// LastModifiedMillis re-derives the epoch from the stored timestamp.
func (r *Record) LastModifiedMillis() (int64, error) {
	return parser.EpochMillis(r.lastModified)
}

// ChapterNumber parses the chapter as a number.
func (r *Record) ChapterNumber() (float64, error) {
	return parser.ParseChapter(r.chapter)
}

// Fields returns the serializable view, computing derived values as needed.
func (r *Record) Fields() Fields {
	return Fields{
		Title:          r.title,
		URLWithChapter: r.urlWithChapter,
		Chapter:        r.chapter,
		LastModified:   r.lastModified,
		Notes:          r.notes,
		Tags:           r.Tags(),
		BaseURL:        r.BaseURL(),
		RomanizedTitle: r.RomanizedTitle(),
	}
}

// String is used in logs.
func (r *Record) String() string {
	return r.title + " <" + r.urlWithChapter + ">"
}
