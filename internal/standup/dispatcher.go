// Package standup sends the standup prompt when a room's job fires.
package standup

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"standupbot/internal/chat"
	"standupbot/internal/model"
	"standupbot/internal/store"
	logx "standupbot/pkg/logx"
)

var monthNames = [...]string{
	"Jan", "Feb", "March", "April", "May", "June",
	"July", "Aug", "Sept", "Oct", "Nov", "Dec",
}

const prompt = "What did you do yesterday? What do you hope to do today? Blockers? Questions? " +
	`Ask me to "help standup" for syntax`

type Dispatcher struct {
	store     store.Store
	sender    chat.Sender
	defaultTZ string
	now       func() time.Time
	log       logx.Logger
}

func New(st store.Store, sender chat.Sender, defaultTZ string, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{store: st, sender: sender, defaultTZ: defaultTZ, now: time.Now, log: log}
}

// Standup posts the prompt into roomID. A room missing from the store is
// logged and the prompt is still sent, with no mentions.
func (d *Dispatcher) Standup(ctx context.Context, roomID string) error {
	var room model.Room
	ok, err := store.GetInto(ctx, d.store, model.RoomPath(roomID), &room)
	if err != nil {
		return err
	}
	if !ok {
		d.log.Error("asked to hold standup for unknown space", logx.String("space", roomID))
	}
	text := Message(room, d.now(), d.defaultTZ, d.sender.Mention)
	if err := d.sender.Send(ctx, roomID, text); err != nil {
		return fmt.Errorf("send standup to %s: %w", roomID, err)
	}
	d.log.Info("standup sent", logx.String("space", roomID), logx.Int("members", len(room.Users)))
	return nil
}

// Message renders the prompt for room at now. The date is taken in the room's
// zone, falling back to defaultTZ and then UTC. Members are mentioned in user
// id order.
func Message(room model.Room, now time.Time, defaultTZ string, mention func(userID, email string) string) string {
	t := now.In(location(room.TimeZone, defaultTZ))

	ids := make([]string, 0, len(room.Users))
	for id := range room.Users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	mentions := make([]string, len(ids))
	for i, id := range ids {
		mentions[i] = mention(id, room.Users[id])
	}

	head := fmt.Sprintf("It's time for the %s %d standup", monthNames[t.Month()-1], t.Day())
	if len(mentions) > 0 {
		head += " " + strings.Join(mentions, ", ")
	}
	return head + "!\n" + prompt
}

func location(names ...string) *time.Location {
	for _, n := range names {
		if n == "" {
			continue
		}
		if loc, err := time.LoadLocation(n); err == nil {
			return loc
		}
	}
	return time.UTC
}
