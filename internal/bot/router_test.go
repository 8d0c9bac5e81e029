package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"help", IntentHelp},
		{"  HELP schedule ", IntentHelp},
		{"add me", IntentAdd},
		{"add @Bob", IntentAdd},
		{"remove me", IntentRemove},
		{"schedule 9:30", IntentSchedule},
		{"unschedule", IntentUnschedule},
		{"set timezone Europe/Paris", IntentSet},
		{"set days mon wed", IntentSet},
		{"forgetme", IntentForgetMe},
		{"forget me", IntentForgetMe},
		{"y: fixed the build", IntentStatus},
		{"Yesterday: shipped it", IntentStatus},
		{"👈 wrote docs", IntentStatus},
		{"⬅️ wrote docs", IntentStatus},
		{"today I will t: do stuff y: did stuff", IntentStatus},
		{"*y:* shipped the release", IntentStatus},
		{"_yesterday:_ fixed bug", IntentStatus},
		{"(y: shipped)", IntentStatus},
		{"done.y: wrote tests", IntentStatus},

		{"", IntentNone},
		{"hello", IntentNone},
		{"helpful", IntentNone},
		{"address", IntentNone},
		{"settle down", IntentNone},
		{"any: thoughts", IntentNone},
		{"*today:* nothing", IntentNone},
		{"day2y: typo", IntentNone},
		{"please schedule 9:30", IntentNone},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.text))
		})
	}
}

// A message matching two patterns dispatches to the earlier one.
func TestRouteOrderIsLoadBearing(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"add y: forgot to add this", IntentStatus},
		{"set yesterday: config tweaks", IntentStatus},
		{"help 👈", IntentStatus},
		{"schedule y: 9:30", IntentStatus},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.text))
		})
	}

	// The table itself: status precedes every keyword route.
	assert.Equal(t, IntentStatus, routes[0].intent)
	seen := map[Intent]bool{}
	for _, r := range routes {
		assert.False(t, seen[r.intent], "duplicate route for %s", r.intent)
		seen[r.intent] = true
	}
}

func TestIntentString(t *testing.T) {
	assert.Equal(t, "forgetme", IntentForgetMe.String())
	assert.Equal(t, "unknown", Intent(99).String())
}
