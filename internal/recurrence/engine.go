package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// Frequency represents supported recurrence intervals of a service day.
type Frequency string

const (
	// FrequencyNone marks a one-off service slot. Expansion walks weekdays like weekly.
	FrequencyNone Frequency = "NONE"
	// FrequencyDaily bounds expansion by consecutive calendar days.
	FrequencyDaily Frequency = "DAILY"
	// FrequencyWeekly generates occurrences for the selected weekdays.
	FrequencyWeekly Frequency = "WEEKLY"
	// FrequencyMonthly generates one occurrence per selected weekday and month.
	FrequencyMonthly Frequency = "MONTHLY"
)

// Ordinal qualifies which weekday of a month a monthly rule selects.
type Ordinal string

const (
	// OrdinalNext selects the first matching weekday on or after the anchor day-of-month.
	OrdinalNext Ordinal = "NEXT"
	// OrdinalFirst selects the first matching weekday of the month.
	OrdinalFirst Ordinal = "FIRST"
	// OrdinalLast selects the last matching weekday of the month.
	OrdinalLast Ordinal = "LAST"
)

// MaxHorizonYears caps how far past the anchor the engine searches.
const MaxHorizonYears = 10

var (
	// ErrNoWeekdays indicates the rule has no weekday to match against.
	ErrNoWeekdays = errors.New("recurrence: at least one weekday is required")
	// ErrInvalidWeekday indicates a weekday outside Sunday..Saturday.
	ErrInvalidWeekday = errors.New("recurrence: weekday must be between 0 (Sunday) and 6 (Saturday)")
	// ErrInvalidCount indicates a non-positive occurrence count.
	ErrInvalidCount = errors.New("recurrence: count must be positive")
	// ErrInvalidFrequency indicates the recurrence frequency is not supported.
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
	// ErrInvalidOrdinal indicates the ordinal qualifier is not supported.
	ErrInvalidOrdinal = errors.New("recurrence: invalid ordinal")
)

// ParseFrequency normalizes a frequency label. An empty label maps to FrequencyNone.
func ParseFrequency(value string) (Frequency, error) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(value))); f {
	case "":
		return FrequencyNone, nil
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}
}

// ParseOrdinal normalizes an ordinal label. An empty label maps to OrdinalNext.
func ParseOrdinal(value string) (Ordinal, error) {
	switch o := Ordinal(strings.ToUpper(strings.TrimSpace(value))); o {
	case "":
		return OrdinalNext, nil
	case OrdinalNext, OrdinalFirst, OrdinalLast:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOrdinal, value)
	}
}

// Query describes a single occurrence resolution request.
type Query struct {
	// From is the anchor. Only dates strictly after its calendar date are returned.
	From     time.Time
	Weekdays []time.Weekday
	// Count caps the number of returned dates. For daily rules it is the
	// number of consecutive calendar days examined.
	Count int
	// EndDate is an inclusive ceiling on returned dates.
	EndDate   *time.Time
	Frequency Frequency
	Ordinal   Ordinal
}

// Rule is the schedule definition of a service day.
type Rule struct {
	Weekdays   []time.Weekday
	Frequency  Frequency
	Ordinal    Ordinal
	StartsOn   *time.Time
	EndsOn     *time.Time
	CycleCount *int
}

// Engine resolves recurrence rules into concrete calendar dates.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that normalizes results to the provided location.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location reports the timezone dates are resolved in.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// StartOfDay strips the time of day in the engine's location.
func (e *Engine) StartOfDay(t time.Time) time.Time {
	return now.With(t.In(e.Location())).BeginningOfDay()
}

// CalendarDate rebuilds the calendar date t carries in its own location as
// midnight in the engine's location. Stored date-only values come back as UTC
// midnight and must not shift across the zone offset.
func (e *Engine) CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.Location())
}

// DateKey formats the calendar date of t in the engine's location.
func (e *Engine) DateKey(t time.Time) string {
	return t.In(e.Location()).Format(time.DateOnly)
}

// CombineDateTime applies an hour and minute to the calendar date of date.
func (e *Engine) CombineDateTime(date time.Time, hour, minute int) time.Time {
	y, m, d := date.In(e.Location()).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, e.Location())
}

// FallsOn reports whether date lands on one of weekdays in the engine's location.
func (e *Engine) FallsOn(date time.Time, weekdays []time.Weekday) bool {
	day := date.In(e.Location()).Weekday()
	for _, candidate := range weekdays {
		if candidate == day {
			return true
		}
	}
	return false
}

// ResolveOccurrences produces the ordered list of dates after q.From on which
// the rule occurs.
//
// The walk stops when q.Count dates have been emitted or when a candidate
// passes q.EndDate, whichever happens first. Returned dates are midnight in
// the engine's location and strictly ascending.
func (e *Engine) ResolveOccurrences(q Query) ([]time.Time, error) {
	if q.Count <= 0 {
		return nil, ErrInvalidCount
	}
	weekdays, err := NormalizeWeekdays(q.Weekdays)
	if err != nil {
		return nil, err
	}

	frequency := q.Frequency
	if frequency == "" {
		frequency = FrequencyNone
	}
	ordinal := q.Ordinal
	if ordinal == "" {
		ordinal = OrdinalNext
	}

	from := e.StartOfDay(q.From)
	ceiling := from.AddDate(MaxHorizonYears, 0, 0)
	if q.EndDate != nil {
		if end := e.StartOfDay(*q.EndDate); end.Before(ceiling) {
			ceiling = end
		}
	}

	switch frequency {
	case FrequencyNone, FrequencyWeekly:
		return walkDays(from, ceiling, weekdays, q.Count), nil
	case FrequencyDaily:
		if window := from.AddDate(0, 0, q.Count); window.Before(ceiling) {
			ceiling = window
		}
		return walkDays(from, ceiling, weekdays, q.Count), nil
	case FrequencyMonthly:
		switch ordinal {
		case OrdinalNext, OrdinalFirst, OrdinalLast:
		default:
			return nil, ErrInvalidOrdinal
		}
		return walkMonths(from, ceiling, weekdays, ordinal, q.Count), nil
	default:
		return nil, ErrInvalidFrequency
	}
}

// Expand resolves up to limit occurrences of rule after from, clipped by the
// rule's own date range and cycle count and by the optional until bound.
func (e *Engine) Expand(rule Rule, from time.Time, limit int, until *time.Time) ([]time.Time, error) {
	if rule.CycleCount != nil && *rule.CycleCount > 0 && *rule.CycleCount < limit {
		limit = *rule.CycleCount
	}

	anchor := e.StartOfDay(from)
	if rule.StartsOn != nil {
		// The first service date itself must stay eligible.
		if first := e.CalendarDate(*rule.StartsOn).AddDate(0, 0, -1); first.After(anchor) {
			anchor = first
		}
	}

	end := until
	if rule.EndsOn != nil {
		endsOn := e.CalendarDate(*rule.EndsOn)
		if end == nil || endsOn.Before(e.StartOfDay(*end)) {
			end = &endsOn
		}
	}

	return e.ResolveOccurrences(Query{
		From:      anchor,
		Weekdays:  rule.Weekdays,
		Count:     limit,
		EndDate:   end,
		Frequency: rule.Frequency,
		Ordinal:   rule.Ordinal,
	})
}

// NormalizeWeekdays validates days, drops repeats and sorts them from Sunday.
func NormalizeWeekdays(days []time.Weekday) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, day := range days {
		if day < time.Sunday || day > time.Saturday {
			return nil, ErrInvalidWeekday
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	if len(out) == 0 {
		return nil, ErrNoWeekdays
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func containsWeekday(days []time.Weekday, day time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func walkDays(from, ceiling time.Time, weekdays []time.Weekday, count int) []time.Time {
	out := make([]time.Time, 0, count)
	for current := from.AddDate(0, 0, 1); !current.After(ceiling) && len(out) < count; current = current.AddDate(0, 0, 1) {
		if containsWeekday(weekdays, current.Weekday()) {
			out = append(out, current)
		}
	}
	return out
}

func walkMonths(from, ceiling time.Time, weekdays []time.Weekday, ordinal Ordinal, count int) []time.Time {
	out := make([]time.Time, 0, count)
	anchorDay := from.Day()

	for month := now.With(from).BeginningOfMonth(); !month.After(ceiling); month = month.AddDate(0, 1, 0) {
		for _, candidate := range monthCandidates(month, weekdays, ordinal, anchorDay) {
			if !candidate.After(from) {
				continue
			}
			if candidate.After(ceiling) {
				return out
			}
			out = append(out, candidate)
			if len(out) == count {
				return out
			}
		}
	}
	return out
}

func monthCandidates(month time.Time, weekdays []time.Weekday, ordinal Ordinal, anchorDay int) []time.Time {
	lastDay := now.With(month).EndOfMonth()
	lastDay = time.Date(lastDay.Year(), lastDay.Month(), lastDay.Day(), 0, 0, 0, 0, month.Location())

	out := make([]time.Time, 0, len(weekdays))
	for _, day := range weekdays {
		switch ordinal {
		case OrdinalFirst:
			out = append(out, onOrAfter(month, day))
		case OrdinalLast:
			out = append(out, onOrBefore(lastDay, day))
		default:
			dom := anchorDay
			if dom > lastDay.Day() {
				dom = lastDay.Day()
			}
			candidate := onOrAfter(time.Date(month.Year(), month.Month(), dom, 0, 0, 0, 0, month.Location()), day)
			if candidate.Month() != month.Month() {
				continue
			}
			out = append(out, candidate)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func onOrAfter(t time.Time, day time.Weekday) time.Time {
	offset := (int(day) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset)
}

func onOrBefore(t time.Time, day time.Weekday) time.Time {
	offset := (int(t.Weekday()) - int(day) + 7) % 7
	return t.AddDate(0, 0, -offset)
}
