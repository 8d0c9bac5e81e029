package bot

import (
	"regexp"
	"strings"
)

// Intent is what a command asks for.
type Intent int

const (
	IntentNone Intent = iota
	IntentStatus
	IntentHelp
	IntentAdd
	IntentRemove
	IntentSchedule
	IntentUnschedule
	IntentSet
	IntentForgetMe
)

var intentNames = map[Intent]string{
	IntentNone:       "none",
	IntentStatus:     "status",
	IntentHelp:       "help",
	IntentAdd:        "add",
	IntentRemove:     "remove",
	IntentSchedule:   "schedule",
	IntentUnschedule: "unschedule",
	IntentSet:        "set",
	IntentForgetMe:   "forgetme",
}

func (i Intent) String() string {
	if n, ok := intentNames[i]; ok {
		return n
	}
	return "unknown"
}

type route struct {
	intent  Intent
	pattern *regexp.Regexp
}

// routes is evaluated in order and the first match wins, so order is part of
// the contract: status markers come first because a status line may start
// with any word ("add: ..." is not a command). The "y:" marker may sit
// anywhere and be wrapped in markup ("*y:*", "(y: ...)") but must not end a
// longer word ("any:").
var routes = []route{
	{IntentStatus, regexp.MustCompile(`⬅️|👈|(?:^|[^\p{L}\p{N}])y(?:esterday)?:`)},
	{IntentHelp, regexp.MustCompile(`^help\b`)},
	{IntentAdd, regexp.MustCompile(`^add\b`)},
	{IntentRemove, regexp.MustCompile(`^remove\b`)},
	{IntentSchedule, regexp.MustCompile(`^schedule\b`)},
	{IntentUnschedule, regexp.MustCompile(`^unschedule\b`)},
	{IntentSet, regexp.MustCompile(`^set\b`)},
	{IntentForgetMe, regexp.MustCompile(`^forget ?me\b`)},
}

// Route classifies command text. It performs no I/O.
func Route(text string) Intent {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, r := range routes {
		if r.pattern.MatchString(text) {
			return r.intent
		}
	}
	return IntentNone
}
