package schedule

import (
	"fmt"
	"time"
)

// RawEntry is the persisted and wire layout shared by both shapes.
type RawEntry struct {
	ID          string     `json:"id" bson:"-"`
	OfficeID    string     `json:"officeId" bson:"officeId"`
	DoctorID    string     `json:"doctorId" bson:"doctorId"`
	Start       *time.Time `json:"start,omitempty" bson:"start,omitempty"`
	End         *time.Time `json:"end,omitempty" bson:"end,omitempty"`
	Days        []string   `json:"days,omitempty" bson:"days,omitempty"`
	StartTime   string     `json:"startTime,omitempty" bson:"startTime,omitempty"`
	EndTime     string     `json:"endTime,omitempty" bson:"endTime,omitempty"`
	IsAvailable bool       `json:"isAvailable" bson:"isAvailable"`
	Title       string     `json:"title,omitempty" bson:"title,omitempty"`
	Reason      string     `json:"reason,omitempty" bson:"reason,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// Decode classifies a raw record as Specific or Recurring. Records mixing
// both layouts or missing required fields fail with ErrMalformedEntry.
func Decode(raw RawEntry) (Entry, error) {
	entry := Entry{
		ID:          raw.ID,
		OfficeID:    raw.OfficeID,
		DoctorID:    raw.DoctorID,
		IsAvailable: raw.IsAvailable,
		Title:       raw.Title,
		Reason:      raw.Reason,
		UpdatedAt:   raw.UpdatedAt,
	}

	hasSpecific := raw.Start != nil || raw.End != nil
	hasRecurring := raw.Days != nil || raw.StartTime != "" || raw.EndTime != ""

	switch {
	case hasSpecific && hasRecurring:
		return Entry{}, fmt.Errorf("%w: mixes date range and weekly fields", ErrMalformedEntry)
	case hasSpecific:
		if raw.Start == nil || raw.End == nil {
			return Entry{}, fmt.Errorf("%w: start and end are both required", ErrMalformedEntry)
		}
		if !raw.End.After(*raw.Start) {
			return Entry{}, fmt.Errorf("%w: end must be after start", ErrMalformedEntry)
		}
		entry.Specific = &SpecificWindow{Start: *raw.Start, End: *raw.End}
		return entry, nil
	case hasRecurring:
		window, err := decodeWeekly(raw.Days, raw.StartTime, raw.EndTime)
		if err != nil {
			return Entry{}, err
		}
		entry.Recurring = &window
		return entry, nil
	default:
		return Entry{}, fmt.Errorf("%w: neither date range nor weekly fields", ErrMalformedEntry)
	}
}

func decodeWeekly(names []string, startTime, endTime string) (WeeklyWindow, error) {
	if len(names) == 0 {
		return WeeklyWindow{}, fmt.Errorf("%w: days must not be empty", ErrMalformedEntry)
	}
	seen := make(map[time.Weekday]bool, len(names))
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, ok := ParseDay(name)
		if !ok {
			return WeeklyWindow{}, fmt.Errorf("%w: unknown day %q", ErrMalformedEntry, name)
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	if !validClock(startTime) || !validClock(endTime) {
		return WeeklyWindow{}, fmt.Errorf("%w: startTime and endTime must be HH:mm", ErrMalformedEntry)
	}
	if endTime <= startTime {
		return WeeklyWindow{}, fmt.Errorf("%w: endTime must be after startTime", ErrMalformedEntry)
	}
	return WeeklyWindow{Days: days, StartTime: startTime, EndTime: endTime}, nil
}

// Encode renders an entry back into its persisted layout.
func Encode(entry Entry) RawEntry {
	raw := RawEntry{
		ID:          entry.ID,
		OfficeID:    entry.OfficeID,
		DoctorID:    entry.DoctorID,
		IsAvailable: entry.IsAvailable,
		Title:       entry.Title,
		Reason:      entry.Reason,
		UpdatedAt:   entry.UpdatedAt,
	}
	switch {
	case entry.Specific != nil:
		start, end := entry.Specific.Start, entry.Specific.End
		raw.Start = &start
		raw.End = &end
	case entry.Recurring != nil:
		raw.Days = make([]string, 0, len(entry.Recurring.Days))
		for _, day := range entry.Recurring.Days {
			raw.Days = append(raw.Days, DayName(day))
		}
		raw.StartTime = entry.Recurring.StartTime
		raw.EndTime = entry.Recurring.EndTime
	}
	return raw
}

// DecodeAll splits raw records into valid entries and rejected ones.
func DecodeAll(raws []RawEntry) ([]Entry, []Rejected) {
	entries := make([]Entry, 0, len(raws))
	var rejected []Rejected
	for _, raw := range raws {
		entry, err := Decode(raw)
		if err != nil {
			rejected = append(rejected, Rejected{ID: raw.ID, Err: err})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rejected
}
