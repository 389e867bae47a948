package recurrence

import (
	"testing"
	"time"
)

func BenchmarkEngineResolveOccurrences(b *testing.B) {
	engine := NewEngine(nil)
	from := time.Date(2024, time.May, 6, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(1, 0, 0)

	query := Query{
		From:      from,
		Weekdays:  []time.Weekday{time.Sunday, time.Wednesday},
		Count:     52,
		EndDate:   &until,
		Frequency: FrequencyWeekly,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dates, err := engine.ResolveOccurrences(query)
		if err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
		if len(dates) == 0 {
			b.Fatal("expected occurrences to be resolved")
		}
	}
}

func BenchmarkEngineResolveMonthly(b *testing.B) {
	engine := NewEngine(nil)
	from := time.Date(2024, time.May, 6, 0, 0, 0, 0, time.UTC)

	query := Query{
		From:      from,
		Weekdays:  []time.Weekday{time.Sunday},
		Count:     24,
		Frequency: FrequencyMonthly,
		Ordinal:   OrdinalLast,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.ResolveOccurrences(query); err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
	}
}
