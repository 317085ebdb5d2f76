package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/tartampluch/go-musicbot/internal/config"
	"gopkg.in/yaml.v3"
)

// ReferenceEntry is one known date in the reference catalog.
type ReferenceEntry struct {
	Kind SubjectKind

	// Subject is the album title or the musician name.
	Subject string

	// Artist is set for albums only.
	Artist string

	Date DateClaim

	// YearKnown is false for vCard birthdays written as --MM-DD.
	YearKnown bool

	Note string
}

// Occurrence is a ReferenceEntry projected onto a concrete calendar day.
type Occurrence struct {
	Entry      ReferenceEntry
	On         time.Time
	YearsSince int
}

// Catalog is an optional reference dataset of known album release dates and
// musician birthdays. The verifier consults it in addition to the date match,
// never instead of it.
type Catalog struct {
	mu        sync.RWMutex
	albums    map[string]ReferenceEntry
	musicians map[string]ReferenceEntry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		albums:    make(map[string]ReferenceEntry),
		musicians: make(map[string]ReferenceEntry),
	}
}

func albumKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf(config.FormatAlbumKey, title, artist)))
}

func musicianKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add inserts or replaces entries.
func (c *Catalog) Add(entries ...ReferenceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		switch e.Kind {
		case SubjectAlbum:
			c.albums[albumKey(e.Subject, e.Artist)] = e
		case SubjectBirthday:
			c.musicians[musicianKey(e.Subject)] = e
		}
	}
}

// Lookup finds the reference entry for a subject. counterparty is the artist
// for albums and ignored for birthdays. A nil catalog knows nothing.
func (c *Catalog) Lookup(kind SubjectKind, subject, counterparty string) (ReferenceEntry, bool) {
	if c == nil {
		return ReferenceEntry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var e ReferenceEntry
	var ok bool
	switch kind {
	case SubjectAlbum:
		e, ok = c.albums[albumKey(subject, counterparty)]
	case SubjectBirthday:
		e, ok = c.musicians[musicianKey(subject)]
	}
	return e, ok
}

// Len reports the number of albums and musicians known.
func (c *Catalog) Len() (albums, musicians int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.albums), len(c.musicians)
}

// Entries returns all entries sorted by month, day and subject.
func (c *Catalog) Entries() []ReferenceEntry {
	c.mu.RLock()
	out := make([]ReferenceEntry, 0, len(c.albums)+len(c.musicians))
	for _, e := range c.albums {
		out = append(out, e)
	}
	for _, e := range c.musicians {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date.MonthDay() != b.Date.MonthDay() {
			return a.Date.MonthDay() < b.Date.MonthDay()
		}
		return a.Subject < b.Subject
	})
	return out
}

// Upcoming projects every entry onto its next occurrence relative to now and
// keeps those within the next days days (today included).
func (c *Catalog) Upcoming(now time.Time, days int) []Occurrence {
	loc := now.Location()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	horizon := todayStart.AddDate(0, 0, days)

	var out []Occurrence
	for _, e := range c.Entries() {
		on := nextOccurrence(todayStart, e.Date)
		if !on.Before(horizon) {
			continue
		}
		years := 0
		if e.YearKnown {
			years = on.Year() - e.Date.Year
		}
		out = append(out, Occurrence{Entry: e, On: on, YearsSince: years})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].On.Before(out[j].On) })
	return out
}

// nextOccurrence finds the first day on or after todayStart whose month and
// day equal the claim. Feb 29 is only found in leap years, so the search
// spans up to eight years.
func nextOccurrence(todayStart time.Time, d DateClaim) time.Time {
	loc := todayStart.Location()
	for y := todayStart.Year(); y <= todayStart.Year()+8; y++ {
		candidate := time.Date(y, time.Month(d.Month), d.Day, 0, 0, 0, 0, loc)
		// time.Date normalizes 02-30 into March; such a date never exists.
		if int(candidate.Month()) != d.Month || candidate.Day() != d.Day {
			continue
		}
		if !candidate.Before(todayStart) {
			return candidate
		}
	}
	return time.Time{}.In(loc).AddDate(9999, 0, 0)
}

// -----------------------------------------------------------------------------
// Built-in reference data
// -----------------------------------------------------------------------------

// KnownAlbums is the built-in album reference table.
func KnownAlbums() []ReferenceEntry {
	known := []struct{ title, artist, released string }{
		{"Elephant", "The White Stripes", "2003-04-01"},
		{"The Dark Side of the Moon", "Pink Floyd", "1973-03-01"},
		{"Thriller", "Michael Jackson", "1982-11-30"},
		{"Abbey Road", "The Beatles", "1969-09-26"},
		{"Nevermind", "Nirvana", "1991-09-24"},
		{"OK Computer", "Radiohead", "1997-05-21"},
		{"Purple Rain", "Prince", "1984-06-25"},
		{"Rumours", "Fleetwood Mac", "1977-02-04"},
		{"Back in Black", "AC/DC", "1980-07-25"},
		{"The Miseducation of Lauryn Hill", "Lauryn Hill", "1998-08-25"},
	}
	out := make([]ReferenceEntry, 0, len(known))
	for _, k := range known {
		d, _ := ParseDateClaim(k.released)
		out = append(out, ReferenceEntry{
			Kind:      SubjectAlbum,
			Subject:   k.title,
			Artist:    k.artist,
			Date:      d,
			YearKnown: true,
		})
	}
	return out
}

// -----------------------------------------------------------------------------
// Decoders
// -----------------------------------------------------------------------------

type albumFile struct {
	Albums []struct {
		Title    string `yaml:"title"`
		Artist   string `yaml:"artist"`
		Released string `yaml:"released"`
		Note     string `yaml:"note"`
	} `yaml:"albums"`
}

// DecodeAlbums reads a YAML album list:
//
//	albums:
//	  - title: Abbey Road
//	    artist: The Beatles
//	    released: 1969-09-26
//
// Release dates accept any shape ParseDateClaim does. Invalid rows are
// skipped and logged.
func DecodeAlbums(r io.Reader) ([]ReferenceEntry, error) {
	var f albumFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", config.ErrCatalogDecode, err)
	}

	out := make([]ReferenceEntry, 0, len(f.Albums))
	for _, a := range f.Albums {
		d, err := ParseDateClaim(a.Released)
		if err != nil || a.Title == "" || a.Artist == "" {
			slog.Warn(config.MsgSkippedAlbum,
				config.LogKeyComponent, config.CompCatalog,
				config.LogKeyName, a.Title,
				config.LogKeyValue, a.Released)
			continue
		}
		out = append(out, ReferenceEntry{
			Kind:      SubjectAlbum,
			Subject:   a.Title,
			Artist:    a.Artist,
			Date:      d,
			YearKnown: true,
			Note:      a.Note,
		})
	}
	return out, nil
}

// DecodeMusicians reads musician birthdays from a vCard stream (FN + BDAY).
// Malformed cards are skipped so one bad record does not hide the rest.
func DecodeMusicians(ctx context.Context, r io.Reader) ([]ReferenceEntry, error) {
	decoder := vcard.NewDecoder(r)
	var out []ReferenceEntry

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		card, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Warn(config.MsgSkippedCard,
				config.LogKeyComponent, config.CompCatalog,
				config.LogKeyError, err)
			continue
		}

		bday := card.Get(config.VCardBDAY)
		if bday == nil || bday.Value == "" {
			continue
		}
		d, yearKnown, err := parseVCardDate(bday.Value)
		if err != nil {
			slog.Debug(config.MsgSkippedDate,
				config.LogKeyComponent, config.CompCatalog,
				config.LogKeyValue, bday.Value)
			continue
		}

		// Name Strategy: FN (Formatted) > N (Structured) > Fallback
		name := config.FallbackName
		if fn := card.Get(config.VCardFN); fn != nil && fn.Value != "" {
			name = fn.Value
		} else if n := card.Get(config.VCardN); n != nil && n.Value != "" {
			name = n.Value
		}

		note := ""
		if nf := card.Get(config.VCardNote); nf != nil {
			note = nf.Value
		}

		out = append(out, ReferenceEntry{
			Kind:      SubjectBirthday,
			Subject:   name,
			Date:      d,
			YearKnown: yearKnown,
			Note:      note,
		})
	}
	return out, nil
}

// parseVCardDate handles the BDAY shapes found in real address books.
func parseVCardDate(value string) (DateClaim, bool, error) {
	formatsWithYear := []string{
		config.DateFormatFullDash,
		"20060102",
		time.RFC3339,
		"2006-01-02T15:04:05Z",
	}
	for _, f := range formatsWithYear {
		if t, err := time.Parse(f, value); err == nil {
			return DateClaim{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, true, nil
		}
	}

	// Truncated dates (year unknown), vCard specific.
	for _, f := range []string{"--01-02", "--0102"} {
		if t, err := time.Parse(f, value); err == nil {
			return DateClaim{Month: int(t.Month()), Day: t.Day()}, false, nil
		}
	}
	return DateClaim{}, false, ErrUnparseableDate
}
