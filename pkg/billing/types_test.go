package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysInCycle(t *testing.T) {
	tests := []struct {
		duration int
		unit     DurationUnit
		want     int
	}{
		{1, DurationDay, 1},
		{2, DurationWeek, 14},
		{1, DurationMonth, 30},
		{3, DurationMonth, 90},
		{1, DurationYear, 365},
		{0, DurationMonth, 0},
		{1, DurationUnit("fortnight"), 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DaysInCycle(tt.duration, tt.unit), "%d %s", tt.duration, tt.unit)
	}
}

func TestDurationUnit_AddTo(t *testing.T) {
	start := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC), DurationWeek.AddTo(start, 2))
	assert.Equal(t, time.Date(2027, 1, 31, 12, 0, 0, 0, time.UTC), DurationYear.AddTo(start, 1))
	assert.Equal(t, start, DurationUnit("").AddTo(start, 3))
	assert.True(t, DurationMonth.Valid())
	assert.False(t, DurationUnit("").Valid())
}

func TestMembership_RemainingDaysInCycle(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	t.Run("whole days until expiration", func(t *testing.T) {
		exp := now.Add(20*24*time.Hour + time.Hour)
		m := &Membership{Duration: 1, DurationUnit: DurationMonth, DateExpiration: &exp}
		assert.Equal(t, 20, m.RemainingDaysInCycle(now))
	})

	t.Run("clamped to the cycle", func(t *testing.T) {
		exp := now.AddDate(0, 0, 45)
		m := &Membership{Duration: 1, DurationUnit: DurationMonth, DateExpiration: &exp}
		assert.Equal(t, 30, m.RemainingDaysInCycle(now))
	})

	t.Run("expired", func(t *testing.T) {
		exp := now.Add(-time.Hour)
		m := &Membership{Duration: 1, DurationUnit: DurationMonth, DateExpiration: &exp}
		assert.Equal(t, 0, m.RemainingDaysInCycle(now))
	})

	t.Run("no expiration", func(t *testing.T) {
		m := &Membership{Duration: 1, DurationUnit: DurationMonth}
		assert.Equal(t, 0, m.RemainingDaysInCycle(now))
	})
}

func TestMembership_CycleStartedOn(t *testing.T) {
	now := time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)

	created := &Membership{DateCreated: time.Date(2026, 10, 15, 1, 0, 0, 0, time.UTC)}
	assert.True(t, created.CycleStartedOn(now))

	renewed := time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)
	old := &Membership{DateCreated: now.AddDate(0, -3, 0), DateRenewed: &renewed}
	assert.True(t, old.CycleStartedOn(now))

	lastRenewed := now.AddDate(0, 0, -2)
	stale := &Membership{DateCreated: now.AddDate(0, -3, 0), DateRenewed: &lastRenewed}
	assert.False(t, stale.CycleStartedOn(now))
}

func TestMembership_Status(t *testing.T) {
	m := &Membership{Status: MembershipStatusTrialing, Recurring: true, Duration: 1}
	assert.True(t, m.IsTrialing())
	assert.False(t, m.IsActive())
	assert.False(t, m.IsLifetime())

	lifetime := &Membership{Status: MembershipStatusActive}
	assert.True(t, lifetime.IsActive())
	assert.True(t, lifetime.IsLifetime())
}

func TestDiscountCode_IsValid(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	tests := []struct {
		name    string
		code    DiscountCode
		product int64
		want    bool
	}{
		{"active code for any product", DiscountCode{Active: true}, 7, true},
		{"inactive", DiscountCode{Active: false}, 7, false},
		{"not started", DiscountCode{Active: true, StartsAt: &future}, 7, false},
		{"expired", DiscountCode{Active: true, ExpiresAt: &past}, 7, false},
		{"used up", DiscountCode{Active: true, MaxUses: 3, Uses: 3}, 7, false},
		{"restricted to another product", DiscountCode{Active: true, AllowedProducts: []int64{1, 2}}, 7, false},
		{"restricted to this product", DiscountCode{Active: true, AllowedProducts: []int64{7}}, 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.IsValid(tt.product, now))
		})
	}
}
