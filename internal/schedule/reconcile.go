package schedule

import (
	"sort"
	"time"
)

const (
	TitleAvailable   = "Disponible"
	TitleUnavailable = "No Disponible"
)

type Event struct {
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	IsAvailable bool      `json:"isAvailable"`
	EntryID     string    `json:"entryId"`
	Kind        Kind      `json:"kind"`
}

// Reconcile emits one event per specific entry and, for recurring entries, one
// event per listed weekday at its next or current occurrence relative to now.
// Output depends only on entries and now.
func Reconcile(entries []Entry, now time.Time) []Event {
	today := midnight(now)
	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		switch entry.Kind() {
		case KindSpecific:
			events = append(events, specificEvent(entry))
		case KindRecurring:
			for _, day := range entry.Recurring.Days {
				offset := (int(day) - int(today.Weekday()) + 7) % 7
				events = append(events, recurringEvent(entry, today.AddDate(0, 0, offset)))
			}
		}
	}
	sortEvents(events)
	return events
}

// Expand emits every occurrence that overlaps [from, to).
func Expand(entries []Entry, from, to time.Time) []Event {
	var events []Event
	if !to.After(from) {
		return events
	}
	for _, entry := range entries {
		switch entry.Kind() {
		case KindSpecific:
			if overlaps(entry.Specific.Start, entry.Specific.End, from, to) {
				events = append(events, specificEvent(entry))
			}
		case KindRecurring:
			days := make(map[time.Weekday]bool, len(entry.Recurring.Days))
			for _, day := range entry.Recurring.Days {
				days[day] = true
			}
			for date := midnight(from); date.Before(to); date = date.AddDate(0, 0, 1) {
				if !days[date.Weekday()] {
					continue
				}
				event := recurringEvent(entry, date)
				if overlaps(event.Start, event.End, from, to) {
					events = append(events, event)
				}
			}
		}
	}
	sortEvents(events)
	return events
}

func specificEvent(entry Entry) Event {
	title := entry.Title
	if title == "" {
		title = titleFor(entry)
	}
	return Event{
		Title:       title,
		Start:       entry.Specific.Start,
		End:         entry.Specific.End,
		IsAvailable: entry.IsAvailable,
		EntryID:     entry.ID,
		Kind:        KindSpecific,
	}
}

func recurringEvent(entry Entry, date time.Time) Event {
	return Event{
		Title:       titleFor(entry),
		Start:       atClock(date, entry.Recurring.StartTime),
		End:         atClock(date, entry.Recurring.EndTime),
		IsAvailable: entry.IsAvailable,
		EntryID:     entry.ID,
		Kind:        KindRecurring,
	}
}

func titleFor(entry Entry) string {
	if entry.IsAvailable {
		return TitleAvailable
	}
	if entry.Reason != "" {
		return entry.Reason
	}
	return TitleUnavailable
}

func midnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func atClock(date time.Time, clock string) time.Time {
	parsed, _ := time.Parse(clockLayout, clock)
	year, month, day := date.Date()
	return time.Date(year, month, day, parsed.Hour(), parsed.Minute(), 0, 0, date.Location())
}

func overlaps(start, end, from, to time.Time) bool {
	return start.Before(to) && end.After(from)
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].EntryID < events[j].EntryID
	})
}
