package engine

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/go-musicbot/internal/config"
)

// BuildCalendar renders the upcoming anniversaries and birthdays of the
// catalog as an iCalendar feed. The feed always contains a valid VCALENDAR,
// even when nothing is upcoming.
func BuildCalendar(now time.Time, occurrences []Occurrence) ([]byte, error) {
	if len(occurrences) == 0 {
		return []byte(config.StubVCalendar), nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)

	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(now.UTC())

	for _, occ := range occurrences {
		event := ical.NewEvent()
		event.Props.SetText(config.PropUID, eventUID(occ))
		event.Props.SetText(config.PropSummary, eventSummary(occ))
		event.Props.SetText(config.PropCategories, string(occ.Entry.Kind))
		if occ.Entry.Note != "" {
			event.Props.SetText(config.PropDescription, occ.Entry.Note)
		}

		dtStartProp := ical.NewProp(config.PropDTStart)
		dtStartProp.SetDate(occ.On)
		event.Props.Set(dtStartProp)
		event.Props.Set(dtStampProp)

		cal.Children = append(cal.Children, event.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}

	slog.Info(config.MsgGenSuccess,
		config.LogKeyComponent, config.CompEngine,
		config.LogKeyCount, len(occurrences))
	return buf.Bytes(), nil
}

// eventUID is stable across refreshes so calendar clients update events in
// place instead of duplicating them.
func eventUID(occ Occurrence) string {
	input := fmt.Sprintf(config.FormatHashInput,
		occ.Entry.Kind, albumKey(occ.Entry.Subject, occ.Entry.Artist), config.UIDSalt+occ.Entry.Date.MonthDay())
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf(config.FormatUID, fmt.Sprintf("%x", hash[:config.UIDHashLength]), occ.On.Year(), config.ICalDomain)
}

func eventSummary(occ Occurrence) string {
	e := occ.Entry
	if e.Kind == SubjectAlbum {
		return fmt.Sprintf(config.FormatSummaryAlbum, Ordinal(occ.YearsSince), e.Subject, e.Artist)
	}
	if !e.YearKnown {
		return fmt.Sprintf(config.FormatSummaryNoYear, e.Subject)
	}
	return fmt.Sprintf(config.FormatSummaryBirthday, Ordinal(occ.YearsSince), e.Subject)
}
