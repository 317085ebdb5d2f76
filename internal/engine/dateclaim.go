package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tartampluch/go-musicbot/internal/config"
)

// ErrUnparseableDate is returned by ParseDateClaim for text that matches no
// accepted shape or does not denote a real calendar date.
var ErrUnparseableDate = errors.New(config.ErrDateParse)

// DateClaim is a calendar date asserted by the agent (a release date or a
// birth date). It is never persisted.
type DateClaim struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// MonthDay renders the claim as MM-DD, the key used for anniversary matching.
func (d DateClaim) MonthDay() string {
	return fmt.Sprintf(config.FormatMonthDay, d.Month, d.Day)
}

// String renders the claim as YYYY-MM-DD.
func (d DateClaim) String() string {
	return fmt.Sprintf(config.FormatISODate, d.Year, d.Month, d.Day)
}

var (
	isoDatePattern   = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)
	slashDatePattern = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	longDatePattern  = regexp.MustCompile(`^[A-Za-z]+ \d{1,2}, \d{4}$`)

	// monthAliases maps month spellings time.Parse does not know.
	monthAliases = map[string]string{"sept": "Sep"}
)

// ParseDateClaim parses YYYY-MM-DD, MM/DD/YYYY or "Month D, YYYY".
// Shapes are tried in that order and the first structural match is final.
func ParseDateClaim(text string) (DateClaim, error) {
	switch {
	case isoDatePattern.MatchString(text):
		parts := strings.Split(text, "-")
		return numericClaim(parts[0], parts[1], parts[2])

	case slashDatePattern.MatchString(text):
		parts := strings.Split(text, "/")
		return numericClaim(parts[2], parts[0], parts[1])

	case longDatePattern.MatchString(text):
		month, rest, _ := strings.Cut(text, " ")
		if alias, ok := monthAliases[strings.ToLower(month)]; ok {
			text = alias + " " + rest
		}
		for _, layout := range []string{config.DateLayoutLongMonth, config.DateLayoutShortMonth} {
			if t, err := time.Parse(layout, text); err == nil {
				return DateClaim{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, nil
			}
		}
		return DateClaim{}, fmt.Errorf("%w: %q", ErrUnparseableDate, text)
	}
	return DateClaim{}, fmt.Errorf("%w: %q", ErrUnparseableDate, text)
}

// numericClaim builds a claim from digit-only parts. Bounds are checked per
// field only; a day that does not exist in its month (02-30) is accepted and
// simply never matches a real "today".
func numericClaim(year, month, day string) (DateClaim, error) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if err := errors.Join(errY, errM, errD); err != nil {
		return DateClaim{}, fmt.Errorf("%w: %v", ErrUnparseableDate, err)
	}
	if y < 1 || m < 1 || m > 12 || d < 1 || d > 31 {
		return DateClaim{}, fmt.Errorf("%w: %04d-%02d-%02d out of range", ErrUnparseableDate, y, m, d)
	}
	return DateClaim{Year: y, Month: m, Day: d}, nil
}
