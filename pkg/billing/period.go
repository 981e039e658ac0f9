package billing

import "time"

// DurationUnit is the unit of a billing period
type DurationUnit string

const (
	DurationDay   DurationUnit = "day"
	DurationWeek  DurationUnit = "week"
	DurationMonth DurationUnit = "month"
	DurationYear  DurationUnit = "year"
)

// Valid reports whether the unit is one of the known period units.
func (u DurationUnit) Valid() bool {
	switch u {
	case DurationDay, DurationWeek, DurationMonth, DurationYear:
		return true
	}
	return false
}

// AddTo advances t by n units.
func (u DurationUnit) AddTo(t time.Time, n int) time.Time {
	switch u {
	case DurationDay:
		return t.AddDate(0, 0, n)
	case DurationWeek:
		return t.AddDate(0, 0, 7*n)
	case DurationMonth:
		return t.AddDate(0, n, 0)
	case DurationYear:
		return t.AddDate(n, 0, 0)
	}
	return t
}

// DaysInCycle returns the normalised length of a billing period in days.
// Unknown units and non-positive durations yield zero.
func DaysInCycle(duration int, unit DurationUnit) int {
	if duration <= 0 {
		return 0
	}
	switch unit {
	case DurationDay:
		return duration
	case DurationWeek:
		return 7 * duration
	case DurationMonth:
		return 30 * duration
	case DurationYear:
		return 365 * duration
	}
	return 0
}

// Period is a billing period plus the number of cycles it runs for.
// BillingCycles of zero means unlimited.
type Period struct {
	Duration      int          `json:"duration"`
	DurationUnit  DurationUnit `json:"duration_unit"`
	BillingCycles int          `json:"billing_cycles"`
}

// Days returns the normalised length of one cycle.
func (p Period) Days() int {
	return DaysInCycle(p.Duration, p.DurationUnit)
}

// SameCycle reports whether both periods bill on the same schedule.
func (p Period) SameCycle(o Period) bool {
	return p.Duration == o.Duration && p.DurationUnit == o.DurationUnit
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
