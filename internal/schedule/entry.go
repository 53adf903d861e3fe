// Package schedule models a doctor's office schedule as a tagged union of
// specific date ranges and recurring weekly windows, and turns those entries
// into calendar events.
package schedule

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Kind string

const (
	KindSpecific  Kind = "specific"
	KindRecurring Kind = "recurring"

	// KindInvalid marks an entry with neither window set; it yields no events.
	KindInvalid Kind = "invalid"
)

const clockLayout = "15:04"

var ErrMalformedEntry = errors.New("malformed schedule entry")

// Entry holds exactly one of Specific or Recurring.
type Entry struct {
	ID          string
	OfficeID    string
	DoctorID    string
	IsAvailable bool
	Title       string
	Reason      string
	Specific    *SpecificWindow
	Recurring   *WeeklyWindow
	UpdatedAt   time.Time
}

type SpecificWindow struct {
	Start time.Time
	End   time.Time
}

type WeeklyWindow struct {
	Days      []time.Weekday
	StartTime string
	EndTime   string
}

func (e Entry) Kind() Kind {
	switch {
	case e.Specific != nil:
		return KindSpecific
	case e.Recurring != nil:
		return KindRecurring
	default:
		return KindInvalid
	}
}

// Rejected is a stored record that matched neither shape.
type Rejected struct {
	ID  string
	Err error
}

var dayNames = [...]string{"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado"}

func DayName(day time.Weekday) string {
	return dayNames[day]
}

func ParseDay(name string) (time.Weekday, bool) {
	folded := foldName(name)
	for i, candidate := range dayNames {
		if foldName(candidate) == folded {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

func foldName(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		folded = value
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

func validClock(value string) bool {
	if len(value) != len(clockLayout) {
		return false
	}
	_, err := time.Parse(clockLayout, value)
	return err == nil
}
