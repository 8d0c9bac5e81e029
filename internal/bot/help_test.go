package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelp(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{"help", HelpCommands},
		{"", HelpCommands},
		{"help schedule", helpSchedule},
		{"help unschedule", helpUnschedule},
		{"help set", validProperties},
		{"help set timezone", helpSetTimeZone},
		{"help set time zone", helpSetTimeZone},
		{"help set days", helpSetDays},
		{"help add", helpAdd},
		{"help remove", helpRemove},
		{"help forgetme", helpForgetMe},
		{"HELP Standup", helpStandup},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			assert.Equal(t, tt.want, Help(tt.args))
		})
	}
}

func TestHelpUnknown(t *testing.T) {
	got := Help("help dance")
	assert.True(t, strings.HasPrefix(got, "Cannot help with unknown command dance."), got)
	assert.True(t, strings.HasSuffix(got, HelpCommands))

	got = Help("help set colour")
	assert.True(t, strings.HasPrefix(got, "Cannot set unknown property colour"), got)
}
