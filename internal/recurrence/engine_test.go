package recurrence

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func assertDates(t *testing.T, got []time.Time, want ...time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d dates, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("date %d: expected %s, got %s", i, want[i].Format(time.DateOnly), got[i].Format(time.DateOnly))
		}
	}
}

func TestEngine_ResolveOccurrences(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	monday := day(2024, time.March, 4)

	t.Run("weekly sundays from a monday", func(t *testing.T) {
		t.Parallel()

		got, err := engine.ResolveOccurrences(Query{
			From:      monday,
			Weekdays:  []time.Weekday{time.Sunday},
			Count:     4,
			Frequency: FrequencyWeekly,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got,
			day(2024, time.March, 10),
			day(2024, time.March, 17),
			day(2024, time.March, 24),
			day(2024, time.March, 31),
		)
	})

	t.Run("anchor date itself is excluded", func(t *testing.T) {
		t.Parallel()

		got, err := engine.ResolveOccurrences(Query{
			From:     time.Date(2024, time.March, 10, 8, 30, 0, 0, time.UTC),
			Weekdays: []time.Weekday{time.Sunday},
			Count:    2,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got, day(2024, time.March, 17), day(2024, time.March, 24))
	})

	t.Run("multiple weekdays stay ascending", func(t *testing.T) {
		t.Parallel()

		got, err := engine.ResolveOccurrences(Query{
			From:      monday,
			Weekdays:  []time.Weekday{time.Wednesday, time.Sunday, time.Wednesday},
			Count:     4,
			Frequency: FrequencyWeekly,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got,
			day(2024, time.March, 6),
			day(2024, time.March, 10),
			day(2024, time.March, 13),
			day(2024, time.March, 17),
		)
	})

	t.Run("end date is an inclusive ceiling", func(t *testing.T) {
		t.Parallel()

		end := time.Date(2024, time.March, 24, 23, 0, 0, 0, time.UTC)
		got, err := engine.ResolveOccurrences(Query{
			From:      monday,
			Weekdays:  []time.Weekday{time.Sunday},
			Count:     10,
			EndDate:   &end,
			Frequency: FrequencyWeekly,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got,
			day(2024, time.March, 10),
			day(2024, time.March, 17),
			day(2024, time.March, 24),
		)
	})

	t.Run("end date before anchor yields nothing", func(t *testing.T) {
		t.Parallel()

		end := day(2024, time.March, 1)
		got, err := engine.ResolveOccurrences(Query{
			From:     monday,
			Weekdays: []time.Weekday{time.Sunday},
			Count:    3,
			EndDate:  &end,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no dates, got %v", got)
		}
	})

	t.Run("daily count bounds consecutive days", func(t *testing.T) {
		t.Parallel()

		got, err := engine.ResolveOccurrences(Query{
			From:      monday,
			Weekdays:  []time.Weekday{time.Sunday, time.Wednesday},
			Count:     7,
			Frequency: FrequencyDaily,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got, day(2024, time.March, 6), day(2024, time.March, 10))
	})

	t.Run("monthly first weekday", func(t *testing.T) {
		t.Parallel()

		got, err := engine.ResolveOccurrences(Query{
			From:      monday,
			Weekdays:  []time.Weekday{time.Sunday},
			Count:     3,
			Frequency: FrequencyMonthly,
			Ordinal:   OrdinalFirst,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got,
			day(2024, time.April, 7),
			day(2024, time.May, 5),
			day(2024, time.June, 2),
		)
	})

	t.Run("monthly last weekday", func(t *testing.T) {
		t.Parallel()

		got, err := engine.ResolveOccurrences(Query{
			From:      monday,
			Weekdays:  []time.Weekday{time.Sunday},
			Count:     3,
			Frequency: FrequencyMonthly,
			Ordinal:   OrdinalLast,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got,
			day(2024, time.March, 31),
			day(2024, time.April, 28),
			day(2024, time.May, 26),
		)
	})

	t.Run("monthly next weekday after anchor day of month", func(t *testing.T) {
		t.Parallel()

		got, err := engine.ResolveOccurrences(Query{
			From:      monday,
			Weekdays:  []time.Weekday{time.Sunday},
			Count:     3,
			Frequency: FrequencyMonthly,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got,
			day(2024, time.March, 10),
			day(2024, time.April, 7),
			day(2024, time.May, 5),
		)
	})

	t.Run("monthly next clamps anchor to short months", func(t *testing.T) {
		t.Parallel()

		got, err := engine.ResolveOccurrences(Query{
			From:      day(2024, time.January, 31),
			Weekdays:  []time.Weekday{time.Thursday},
			Count:     1,
			Frequency: FrequencyMonthly,
			Ordinal:   OrdinalNext,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got, day(2024, time.February, 29))
	})
}

func TestEngine_ResolveOccurrencesErrors(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	from := day(2024, time.March, 4)

	cases := []struct {
		name  string
		query Query
		want  error
	}{
		{
			name:  "empty weekday set",
			query: Query{From: from, Count: 3},
			want:  ErrNoWeekdays,
		},
		{
			name:  "non positive count",
			query: Query{From: from, Weekdays: []time.Weekday{time.Sunday}},
			want:  ErrInvalidCount,
		},
		{
			name:  "weekday out of range",
			query: Query{From: from, Weekdays: []time.Weekday{time.Weekday(7)}, Count: 1},
			want:  ErrInvalidWeekday,
		},
		{
			name:  "unknown frequency",
			query: Query{From: from, Weekdays: []time.Weekday{time.Sunday}, Count: 1, Frequency: Frequency("YEARLY")},
			want:  ErrInvalidFrequency,
		},
		{
			name:  "unknown ordinal",
			query: Query{From: from, Weekdays: []time.Weekday{time.Sunday}, Count: 1, Frequency: FrequencyMonthly, Ordinal: Ordinal("THIRD")},
			want:  ErrInvalidOrdinal,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := engine.ResolveOccurrences(tc.query); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestEngine_ResolveOccurrencesProperties(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	start := day(2024, time.January, 1)

	for offset := 0; offset < 45; offset++ {
		from := start.AddDate(0, 0, offset)
		for mask := 1; mask < 1<<7; mask++ {
			var weekdays []time.Weekday
			for d := time.Sunday; d <= time.Saturday; d++ {
				if mask&(1<<uint(d)) != 0 {
					weekdays = append(weekdays, d)
				}
			}

			query := Query{From: from, Weekdays: weekdays, Count: 5, Frequency: FrequencyWeekly}
			got, err := engine.ResolveOccurrences(query)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != query.Count {
				t.Fatalf("from %s mask %b: expected %d dates, got %d", from.Format(time.DateOnly), mask, query.Count, len(got))
			}

			previous := from
			for _, date := range got {
				if !date.After(previous) {
					t.Fatalf("from %s mask %b: dates not strictly ascending: %v", from.Format(time.DateOnly), mask, got)
				}
				if !engine.FallsOn(date, weekdays) {
					t.Fatalf("from %s mask %b: %s is not an allowed weekday", from.Format(time.DateOnly), mask, date.Weekday())
				}
				previous = date
			}

			again, err := engine.ResolveOccurrences(query)
			if err != nil {
				t.Fatalf("unexpected error on second call: %v", err)
			}
			if !reflect.DeepEqual(got, again) {
				t.Fatalf("expected identical results for identical input, got %v and %v", got, again)
			}
		}
	}
}

func TestEngine_Timezone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	engine := NewEngine(loc)

	// 03:00 UTC on Monday is still Sunday evening in New York.
	from := time.Date(2024, time.March, 4, 3, 0, 0, 0, time.UTC)
	got, err := engine.ResolveOccurrences(Query{
		From:     from,
		Weekdays: []time.Weekday{time.Sunday},
		Count:    2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []time.Time{
		time.Date(2024, time.March, 10, 0, 0, 0, 0, loc),
		time.Date(2024, time.March, 17, 0, 0, 0, 0, loc),
	}
	assertDates(t, got, want...)
	for _, date := range got {
		if date.Location() != loc {
			t.Fatalf("expected dates in %s, got %s", loc, date.Location())
		}
		if date.Hour() != 0 || date.Minute() != 0 {
			t.Fatalf("expected midnight across daylight saving change, got %s", date)
		}
	}
}

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	startsOn := day(2024, time.March, 17)
	endsOn := day(2024, time.March, 31)

	t.Run("honours the rule date range", func(t *testing.T) {
		t.Parallel()

		rule := Rule{
			Weekdays:  []time.Weekday{time.Sunday},
			Frequency: FrequencyWeekly,
			StartsOn:  &startsOn,
			EndsOn:    &endsOn,
		}
		got, err := engine.Expand(rule, day(2024, time.March, 4), 10, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got,
			day(2024, time.March, 17),
			day(2024, time.March, 24),
			day(2024, time.March, 31),
		)
	})

	t.Run("cycle count caps the limit", func(t *testing.T) {
		t.Parallel()

		cycles := 2
		rule := Rule{
			Weekdays:   []time.Weekday{time.Sunday},
			Frequency:  FrequencyWeekly,
			StartsOn:   &startsOn,
			CycleCount: &cycles,
		}
		got, err := engine.Expand(rule, day(2024, time.March, 4), 10, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got, day(2024, time.March, 17), day(2024, time.March, 24))
	})

	t.Run("until tighter than rule end wins", func(t *testing.T) {
		t.Parallel()

		until := day(2024, time.March, 20)
		rule := Rule{
			Weekdays: []time.Weekday{time.Sunday},
			EndsOn:   &endsOn,
		}
		got, err := engine.Expand(rule, day(2024, time.March, 4), 10, &until)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got, day(2024, time.March, 10), day(2024, time.March, 17))
	})

	t.Run("date-only bounds keep their calendar date west of UTC", func(t *testing.T) {
		t.Parallel()

		west := time.FixedZone("UTC-5", -5*60*60)
		westEngine := NewEngine(west)
		// Stored date-only bounds come back as UTC midnight.
		endsOn := day(2024, time.March, 24)
		rule := Rule{
			Weekdays:  []time.Weekday{time.Sunday},
			Frequency: FrequencyWeekly,
			StartsOn:  &startsOn,
			EndsOn:    &endsOn,
		}
		until := time.Date(2024, time.March, 31, 0, 0, 0, 0, west)
		got, err := westEngine.Expand(rule, time.Date(2024, time.March, 4, 0, 0, 0, 0, west), 10, &until)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDates(t, got,
			time.Date(2024, time.March, 17, 0, 0, 0, 0, west),
			time.Date(2024, time.March, 24, 0, 0, 0, 0, west),
		)
	})
}

func TestEngine_Helpers(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.FixedZone("UTC-5", -5*60*60))

	// 2024-03-10T00:00Z is the evening of March 9 at UTC-5.
	combined := engine.CombineDateTime(day(2024, time.March, 10), 11, 30)
	if combined.Hour() != 11 || combined.Minute() != 30 || combined.Day() != 9 {
		t.Fatalf("unexpected combined time %s", combined)
	}

	if !engine.FallsOn(time.Date(2024, time.March, 11, 2, 0, 0, 0, time.UTC), []time.Weekday{time.Sunday}) {
		t.Fatal("expected 02:00 UTC Monday to fall on Sunday at UTC-5")
	}

	calendar := engine.CalendarDate(day(2024, time.March, 24))
	if calendar.Day() != 24 || calendar.Hour() != 0 || calendar.Location() != engine.Location() {
		t.Fatalf("expected March 24 midnight at UTC-5, got %s", calendar)
	}

	if key := engine.DateKey(time.Date(2024, time.March, 11, 2, 0, 0, 0, time.UTC)); key != "2024-03-10" {
		t.Fatalf("expected local date key 2024-03-10, got %s", key)
	}
}

func TestNormalizeWeekdays(t *testing.T) {
	t.Parallel()

	got, err := NormalizeWeekdays([]time.Weekday{time.Wednesday, time.Sunday, time.Wednesday})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []time.Weekday{time.Sunday, time.Wednesday}) {
		t.Fatalf("expected sorted unique weekdays, got %v", got)
	}

	if _, err := NormalizeWeekdays(nil); !errors.Is(err, ErrNoWeekdays) {
		t.Fatalf("expected ErrNoWeekdays, got %v", err)
	}
	if _, err := NormalizeWeekdays([]time.Weekday{7}); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("expected ErrInvalidWeekday, got %v", err)
	}
}

func TestParseFrequencyAndOrdinal(t *testing.T) {
	t.Parallel()

	if f, err := ParseFrequency(" weekly "); err != nil || f != FrequencyWeekly {
		t.Fatalf("expected WEEKLY, got %q (%v)", f, err)
	}
	if f, err := ParseFrequency(""); err != nil || f != FrequencyNone {
		t.Fatalf("expected NONE for empty input, got %q (%v)", f, err)
	}
	if _, err := ParseFrequency("fortnightly"); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	if o, err := ParseOrdinal("last"); err != nil || o != OrdinalLast {
		t.Fatalf("expected LAST, got %q (%v)", o, err)
	}
	if o, err := ParseOrdinal(""); err != nil || o != OrdinalNext {
		t.Fatalf("expected NEXT for empty input, got %q (%v)", o, err)
	}
	if _, err := ParseOrdinal("second"); !errors.Is(err, ErrInvalidOrdinal) {
		t.Fatalf("expected ErrInvalidOrdinal, got %v", err)
	}
}
