package bot

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone names must resolve on hosts without zoneinfo

	"golang.org/x/sync/errgroup"

	"standupbot/internal/chat"
	"standupbot/internal/model"
	"standupbot/internal/store"
)

const forgotten = "Done. I don't even know who you are."

var (
	reTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	reDays = regexp.MustCompile(`[ ,]`)

	validDays = []string{
		"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	}
)

// ValidTimeZone reports whether name is an IANA zone the runtime knows.
func ValidTimeZone(name string) bool {
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

func (b *Bot) help(_ context.Context, req request) (string, error) {
	return Help(req.args), nil
}

// status appends the message to the sender's update log for this room.
func (b *Bot) status(ctx context.Context, req request) (string, error) {
	_, err := store.Push(ctx, b.store, model.UpdatesPath(req.userID, req.roomID), map[string]any{
		"text": req.msg.Text,
		"time": store.ServerTimestamp,
	})
	return "", err
}

// targets resolves "<verb> me" to the sender, otherwise the mentioned humans.
func targets(req request, verb string) []chat.User {
	if strings.EqualFold(req.args, verb+" me") {
		return []chat.User{req.msg.Sender}
	}
	return req.msg.MentionedUsers()
}

func emails(users []chat.User) string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Email
	}
	return strings.Join(out, ", ")
}

func (b *Bot) add(ctx context.Context, req request) (string, error) {
	users := targets(req, "add")
	if len(users) == 0 {
		return `Mention the people to add, or say "add me"`, nil
	}
	space := req.msg.Space
	members := map[string]any{}
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range users {
		uid, err := chat.UserID(u.Name)
		if err != nil {
			return "", err
		}
		members[uid] = u.Email
		membership := map[string]any{"spaceType": space.Type}
		if space.DisplayName != "" {
			membership["displayName"] = space.DisplayName
		}
		g.Go(func() error {
			return b.store.Update(gctx, model.MembershipPath(uid, req.roomID), membership)
		})
	}
	g.Go(func() error { return b.store.Update(gctx, model.RoomUsersPath(req.roomID), members) })
	if err := g.Wait(); err != nil {
		return "", err
	}
	return "Added " + emails(users) + " to standup", nil
}

// remove drops room membership only; the users keep their profiles and history.
func (b *Bot) remove(ctx context.Context, req request) (string, error) {
	users := targets(req, "remove")
	if len(users) == 0 {
		return `Mention the people to remove, or say "remove me"`, nil
	}
	members := map[string]any{}
	for _, u := range users {
		uid, err := chat.UserID(u.Name)
		if err != nil {
			return "", err
		}
		members[uid] = nil
	}
	if err := b.store.Update(ctx, model.RoomUsersPath(req.roomID), members); err != nil {
		return "", err
	}
	return "Removed " + emails(users) + " from standup", nil
}

func (b *Bot) schedule(ctx context.Context, req request) (string, error) {
	parts := strings.Fields(req.args)
	if len(parts) > 0 && strings.EqualFold(parts[0], "schedule") {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return "Expected schedule to be in the form 'HH:MM'", nil
	}
	m := reTime.FindStringSubmatch(parts[0])
	if m == nil {
		return "Expected schedule to be in the form 'HH:MM'", nil
	}
	if h, _ := strconv.Atoi(m[1]); h >= 24 {
		return "Hours must be less than 24", nil
	}
	if mm, _ := strconv.Atoi(m[2]); mm >= 60 {
		return "Minutes must be less than 60", nil
	}
	if err := b.store.Set(ctx, model.RoomField(req.roomID, model.FieldSchedule), m[0]); err != nil {
		return "", err
	}
	if err := b.sched.Reconcile(ctx, req.roomID); err != nil {
		return "", err
	}
	return "Sounds good. Standups are scheduled at " + m[0] + ". " +
		"To set the time zone use the `set timezone` command", nil
}

// unschedule clears the schedule and deletes the job directly: with no
// schedule nothing would reconcile it away later.
func (b *Bot) unschedule(ctx context.Context, req request) (string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.store.Set(gctx, model.RoomField(req.roomID, model.FieldSchedule), nil)
	})
	g.Go(func() error { return b.sched.Unschedule(gctx, req.roomID) })
	if err := g.Wait(); err != nil {
		return "", err
	}
	return "OK. I won't bother you anymore. To reschedule standups say 'schedule <time>'", nil
}

func (b *Bot) set(ctx context.Context, req request) (string, error) {
	parts := strings.Fields(req.args)
	if len(parts) < 2 {
		return validProperties, nil
	}
	arg := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	switch prop := strings.ToLower(parts[1]); {
	case prop == "timezone":
		return b.setTimeZone(ctx, req.roomID, arg(2))
	case prop == "time" && strings.EqualFold(arg(2), "zone"):
		return b.setTimeZone(ctx, req.roomID, arg(3))
	case prop == "days":
		return b.setDays(ctx, req.roomID, strings.Join(parts[2:], ","))
	}
	return fmt.Sprintf("Cannot set unknown property %s.\n%s", parts[1], HelpCommands), nil
}

func (b *Bot) setTimeZone(ctx context.Context, roomID, tz string) (string, error) {
	if !b.cfg.ValidZone(tz) {
		return fmt.Sprintf("Do not recognize time zone %q", tz), nil
	}
	if err := b.store.Set(ctx, model.RoomField(roomID, model.FieldTimeZone), tz); err != nil {
		return "", err
	}
	if err := b.reconcileIfScheduled(ctx, roomID); err != nil {
		return "", err
	}
	return "Sounds good. Standups are scheduled in " + tz + ". " +
		"To set the schedule use the `schedule` command", nil
}

// setDays validates the whole list before writing anything.
func (b *Bot) setDays(ctx context.Context, roomID, list string) (string, error) {
	var days, invalid []string
	for _, d := range reDays.Split(strings.ToLower(list), -1) {
		if strings.TrimSpace(d) == "" {
			continue
		}
		days = append(days, d)
		if !slices.Contains(validDays, d) {
			invalid = append(invalid, d)
		}
	}
	if len(invalid) > 0 {
		return fmt.Sprintf("Invalid day(s) %s; valid day values are %s",
			strings.Join(invalid, " "), strings.Join(validDays, ", ")), nil
	}
	if len(days) == 0 {
		return "Expected at least one day; valid day values are " + strings.Join(validDays, ", "), nil
	}
	if err := b.store.Set(ctx, model.RoomField(roomID, model.FieldDays), strings.Join(days, ",")); err != nil {
		return "", err
	}
	if err := b.reconcileIfScheduled(ctx, roomID); err != nil {
		return "", err
	}
	return "Standups are now scheduled for " + strings.Join(days, ", "), nil
}

// reconcileIfScheduled keeps "no schedule, no job": rooms without a schedule
// only record the setting for later.
func (b *Bot) reconcileIfScheduled(ctx context.Context, roomID string) error {
	v, err := b.store.Get(ctx, model.RoomField(roomID, model.FieldSchedule))
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return b.sched.Reconcile(ctx, roomID)
}

// forgetMe removes the sender from every room in their index and deletes
// their profile, status history included.
func (b *Bot) forgetMe(ctx context.Context, req request) (string, error) {
	v, err := b.store.Get(ctx, model.UserRoomsPath(req.userID))
	if err != nil {
		return "", err
	}
	rooms, _ := v.(map[string]any)

	g, gctx := errgroup.WithContext(ctx)
	for roomID := range rooms {
		g.Go(func() error { return b.store.Remove(gctx, model.RoomMemberPath(roomID, req.userID)) })
	}
	g.Go(func() error { return b.store.Remove(gctx, model.UserPath(req.userID)) })
	if err := g.Wait(); err != nil {
		return "", err
	}
	return forgotten, nil
}
