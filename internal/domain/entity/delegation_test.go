package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelegationRule_Matches(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("all rule matches any process at any time", func(t *testing.T) {
		rule := &DelegationRule{DelegationType: DelegationAll}
		assert.True(t, rule.Matches("expense", now))
		assert.True(t, rule.Matches("", now))
	})

	t.Run("partial rule matches named process types", func(t *testing.T) {
		rule := &DelegationRule{
			DelegationType: DelegationPartial,
			ProcessTypes:   []string{"expense", "leave"},
		}
		assert.True(t, rule.Matches("leave", now))
		assert.False(t, rule.Matches("purchase", now))
		// An empty process type means the caller has no scope to check against.
		assert.True(t, rule.Matches("", now))
	})

	t.Run("temporary rule matches inside its window inclusive", func(t *testing.T) {
		start := now.Add(-time.Hour)
		end := now.Add(time.Hour)
		rule := &DelegationRule{
			DelegationType: DelegationTemporary,
			StartTime:      &start,
			EndTime:        &end,
		}
		assert.True(t, rule.Matches("expense", now))
		assert.True(t, rule.Matches("expense", start))
		assert.True(t, rule.Matches("expense", end))
		assert.False(t, rule.Matches("expense", start.Add(-time.Second)))
		assert.False(t, rule.Matches("expense", end.Add(time.Second)))
	})

	t.Run("temporary rule with nil bounds is unbounded on that side", func(t *testing.T) {
		end := now.Add(time.Hour)
		rule := &DelegationRule{DelegationType: DelegationTemporary, EndTime: &end}
		assert.True(t, rule.Matches("expense", now.AddDate(-10, 0, 0)))
		assert.False(t, rule.Matches("expense", end.Add(time.Second)))

		open := &DelegationRule{DelegationType: DelegationTemporary}
		assert.True(t, open.Matches("expense", now))
	})

	t.Run("unknown type never matches", func(t *testing.T) {
		rule := &DelegationRule{DelegationType: "FOREVER"}
		assert.False(t, rule.Matches("expense", now))
	})
}
