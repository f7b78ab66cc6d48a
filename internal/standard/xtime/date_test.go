// Copyright 2026 Peter Edge
//
// All rights reserved.

package xtime

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestTimeToDate(t *testing.T) {
	t.Parallel()
	warsaw := time.FixedZone("CET", 60*60)
	// 23:30 UTC on New Year's Eve is already the next year in Warsaw.
	instant := time.Date(2023, time.December, 31, 23, 30, 0, 0, time.UTC)
	require.Equal(t, Date{2023, time.December, 31}, TimeToDate(instant))
	require.Equal(t, Date{2024, time.January, 1}, TimeToDate(instant.In(warsaw)))
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		input    string
		expected Date
		wantErr  bool
	}{
		{input: "2023-05-02", expected: Date{2023, time.May, 2}},
		{input: "2024-02-29", expected: Date{2024, time.February, 29}},
		{input: "2023-02-29", wantErr: true},
		{input: "20230502", wantErr: true},
		{input: "2023-05-02T00:00:00Z", wantErr: true},
		{input: "", wantErr: true},
	} {
		t.Run(test.input, func(t *testing.T) {
			t.Parallel()
			date, err := ParseDate(test.input)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.expected, date)
			require.Equal(t, test.input, date.String())
		})
	}
}

func TestAddDays(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		name     string
		date     Date
		days     int
		expected Date
	}{
		{name: "previous_day", date: Date{2023, time.May, 2}, days: -1, expected: Date{2023, time.May, 1}},
		{name: "previous_year", date: Date{2023, time.January, 1}, days: -1, expected: Date{2022, time.December, 31}},
		{name: "leap_day", date: Date{2024, time.March, 1}, days: -1, expected: Date{2024, time.February, 29}},
		{name: "non_leap_year", date: Date{2023, time.March, 1}, days: -1, expected: Date{2023, time.February, 28}},
		{name: "next_year", date: Date{2023, time.December, 31}, days: 1, expected: Date{2024, time.January, 1}},
		{name: "zero", date: Date{2023, time.June, 15}, days: 0, expected: Date{2023, time.June, 15}},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			actual := test.date.AddDays(test.days)
			require.Equal(t, test.expected, actual)
			require.Equal(t, test.days, actual.DaysSince(test.date))
		})
	}
}

func TestDaysSince(t *testing.T) {
	t.Parallel()
	require.Equal(t, 365, Date{2024, time.January, 1}.DaysSince(Date{2023, time.January, 1}))
	require.Equal(t, 366, Date{2025, time.January, 1}.DaysSince(Date{2024, time.January, 1}))
	require.Equal(t, -31, Date{2023, time.January, 1}.DaysSince(Date{2023, time.February, 1}))
}

func TestCompare(t *testing.T) {
	t.Parallel()
	dates := []Date{
		{2024, time.January, 1},
		{2023, time.December, 31},
		{2023, time.February, 10},
		{2023, time.December, 1},
		{2023, time.February, 10},
	}
	slices.SortFunc(dates, Date.Compare)
	expected := []Date{
		{2023, time.February, 10},
		{2023, time.February, 10},
		{2023, time.December, 1},
		{2023, time.December, 31},
		{2024, time.January, 1},
	}
	if diff := cmp.Diff(expected, dates); diff != "" {
		t.Errorf("sorted dates mismatch (-want +got):\n%s", diff)
	}
	first, second := Date{2023, time.May, 1}, Date{2023, time.May, 2}
	require.True(t, first.Before(second))
	require.False(t, second.Before(first))
	require.True(t, second.After(first))
	require.True(t, first.EqualOrBefore(first))
	require.True(t, first.EqualOrBefore(second))
	require.False(t, second.EqualOrBefore(first))
}

func TestIsZero(t *testing.T) {
	t.Parallel()
	require.True(t, Date{}.IsZero())
	require.False(t, Date{2023, time.January, 1}.IsZero())
}

func TestDateJSON(t *testing.T) {
	t.Parallel()
	type position struct {
		Date Date `json:"date"`
	}
	data, err := json.Marshal(position{Date: Date{2023, time.February, 10}})
	require.NoError(t, err)
	require.JSONEq(t, `{"date":"2023-02-10"}`, string(data))
	var decoded position
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, Date{2023, time.February, 10}, decoded.Date)
	require.Error(t, json.Unmarshal([]byte(`{"date":"10.02.2023"}`), &decoded))
}
