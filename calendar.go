package datalake

import (
	"time"
)

// EpochMsToCalendar converts an epoch-millisecond timestamp into a time
// dimension row. It is defined for every int64.
//
// Conventions:
//   - all attributes are computed in UTC, never the local zone
//   - Week is the ISO-8601 week number (1-53), whose year may differ from
//     Year around January 1st
//   - Weekday counts from 1 = Sunday to 7 = Saturday
//
// For example 1541207953796 is 2018-11-03T01:19:13.796Z, a Saturday in ISO
// week 44: {Hour: 1, Day: 3, Week: 44, Month: 11, Year: 2018, Weekday: 7}.
func EpochMsToCalendar(ts int64) TimeRow {
	t := time.UnixMilli(ts).UTC()
	_, week := t.ISOWeek()
	return TimeRow{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   int(t.Weekday()) + 1,
	}
}
