package bot

import "strings"

const (
	HelpCommands = "Valid commands are:\n" +
		"- help [command]?: display a list of valid commands\n" +
		"- help standup: display syntax for recording standups for snippet parsing\n" +
		"- schedule <time>: schedule standup for a particular time\n" +
		"- unschedule: stop scheduling standups\n" +
		"- set timezone <tz>: set the time zone for standup\n" +
		"- set days <day list>: set the days for standup\n" +
		"- add <username>: add a user to standup\n" +
		"- remove <username>: remove a user from standup\n" +
		"- forgetme: purge all data about me"

	helpSchedule    = "schedule <time>: schedule a standup for a particular time. <time> should be in the form HH:MM in a 24hr clock."
	helpUnschedule  = "unschedule: stop scheduling standups"
	helpSetTimeZone = "set timezone <timezone>: schedule standup to happen at a particular timezone, e.g. America/Los_Angeles"
	helpSetDays     = "set days <day list>: schedule standup to happen on particular days. " +
		`Day names can be full names (e.g. "monday") or three-letter acronyms (e.g. "mon"). ` +
		"Days can be space or comma delimited."
	helpAdd      = `add <user mention>: adds a user to daily standup. Use "add me" to schedule yourself`
	helpRemove   = `remove <user mention>: removes a user from daily standup. Use "remove me" to unschedule yourself`
	helpForgetMe = "forgetme: remove yourself from all standups and delete all recorded snippets"
	helpStandup  = "Standups can be formatted in multiple ways to preserve yesterday's accomplishments as snippets.\n" +
		"If you prefer emojis, you can use 👈 (yesterday), 👇 (today), 🛑 (blockers), ❓ (questions)\n" +
		`If you prefer terse text, you can use "y:", "t:", "b:", "q:"` + "\n" +
		"You will soon be able to get snippets based on all previous day's accomplishments"

	Welcome = "Hi, my name is Standup Bot\n" + HelpCommands

	validProperties = "Valid properties are timezone and days. Please ask for further help"
)

// Help answers "help [topic...]". It touches no state.
func Help(args string) string {
	parts := strings.Fields(strings.ToLower(args))
	if len(parts) > 0 && parts[0] == "help" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return HelpCommands
	}
	switch parts[0] {
	case "schedule":
		return helpSchedule
	case "unschedule":
		return helpUnschedule
	case "set":
		if len(parts) == 1 {
			return validProperties
		}
		if parts[1] == "timezone" || (parts[1] == "time" && len(parts) > 2 && parts[2] == "zone") {
			return helpSetTimeZone
		}
		if parts[1] == "days" {
			return helpSetDays
		}
		return "Cannot set unknown property " + strings.Join(parts[1:], " ") + "\n" + HelpCommands
	case "add":
		return helpAdd
	case "remove":
		return helpRemove
	case "forgetme":
		return helpForgetMe
	case "standup":
		return helpStandup
	}
	return "Cannot help with unknown command " + strings.Join(parts, " ") + ".\n" + HelpCommands
}
