// Package bot turns chat events into state changes and replies.
//
// Inbound command text is classified by Route and dispatched to one handler
// per Intent. Handlers return the reply text ("" for no reply). Bad user
// input is a reply, never an error; any error a handler returns is turned
// into an "unhandled exception" reply at the top.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"standupbot/internal/chat"
	"standupbot/internal/jobs"
	"standupbot/internal/model"
	"standupbot/internal/store"
	logx "standupbot/pkg/logx"
)

// Scheduler keeps a room's recurring job in line with its stored schedule.
type Scheduler interface {
	Reconcile(ctx context.Context, roomID string) error
	// Unschedule deletes the room's job. A missing job is jobs.ErrNotFound.
	Unschedule(ctx context.Context, roomID string) error
}

type Config struct {
	// DefaultTime seeds the schedule of a room the bot joins.
	DefaultTime string
	// ValidZone reports whether a time zone name is known. Defaults to ValidTimeZone.
	ValidZone func(name string) bool
}

// Bot holds no mutable state and is safe for concurrent use.
type Bot struct {
	store    store.Store
	sched    Scheduler
	cfg      Config
	log      logx.Logger
	handlers map[Intent]handler
}

type request struct {
	msg    *chat.Message
	args   string
	roomID string
	userID string
}

type handler func(ctx context.Context, req request) (string, error)

func New(cfg Config, st store.Store, sched Scheduler, log logx.Logger) *Bot {
	if cfg.ValidZone == nil {
		cfg.ValidZone = ValidTimeZone
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{store: st, sched: sched, cfg: cfg, log: log}
	b.handlers = map[Intent]handler{
		IntentStatus:     b.status,
		IntentHelp:       b.help,
		IntentAdd:        b.add,
		IntentRemove:     b.remove,
		IntentSchedule:   b.schedule,
		IntentUnschedule: b.unschedule,
		IntentSet:        b.set,
		IntentForgetMe:   b.forgetMe,
	}
	return b
}

// HandleEvent processes one inbound event. A nil reply means an empty
// response body. Errors come only from room lifecycle events; message
// failures are reported in the reply.
func (b *Bot) HandleEvent(ctx context.Context, ev chat.Event) (*chat.Reply, error) {
	switch ev.Type {
	case chat.EventAddedToSpace:
		if err := b.addedToSpace(ctx, ev); err != nil {
			return nil, err
		}
		// Adding the bot usually mentions it without a command.
		if Route(ev.ArgumentText()) == IntentNone {
			return &chat.Reply{Text: Welcome}, nil
		}
	case chat.EventRemovedFromSpace:
		if err := b.removedFromSpace(ctx, ev); err != nil {
			return nil, err
		}
	}
	if ev.Message == nil || strings.TrimSpace(ev.Message.ArgumentText) == "" {
		return nil, nil
	}
	return b.HandleMessage(ctx, ev.Message), nil
}

// HandleMessage routes a command message and returns its reply, or nil.
func (b *Bot) HandleMessage(ctx context.Context, msg *chat.Message) *chat.Reply {
	intent := Route(msg.ArgumentText)
	if intent == IntentNone {
		return &chat.Reply{Text: fmt.Sprintf("Unknown command %s.\n%s", msg.ArgumentText, HelpCommands)}
	}
	log := b.log.With(logx.String("intent", intent.String()), logx.String("space", msg.Space.Name))
	start := time.Now()

	text, err := b.dispatch(ctx, intent, msg)
	if err != nil {
		log.Error("unhandled exception", logx.Err(err))
		return &chat.Reply{Text: "Standup Bot failed with unhandled exception: " + err.Error()}
	}
	log.Debug("command handled", logx.Duration("took", time.Since(start)), logx.Bool("replied", text != ""))
	if text == "" {
		return nil
	}
	return &chat.Reply{Text: text}
}

func (b *Bot) dispatch(ctx context.Context, intent Intent, msg *chat.Message) (string, error) {
	roomID, err := chat.RoomID(msg.Space.Name)
	if err != nil {
		return "", err
	}
	userID, err := chat.UserID(msg.Sender.Name)
	if err != nil {
		return "", err
	}
	return b.handlers[intent](ctx, request{
		msg:    msg,
		args:   strings.TrimSpace(msg.ArgumentText),
		roomID: roomID,
		userID: userID,
	})
}

// addedToSpace records the inviter and the room, seeds the room schedule
// with the default time and creates its job.
func (b *Bot) addedToSpace(ctx context.Context, ev chat.Event) error {
	if ev.User == nil || ev.Space == nil {
		return errors.New("ADDED_TO_SPACE event without user or space")
	}
	userID, err := chat.UserID(ev.User.Name)
	if err != nil {
		return err
	}
	roomID, err := chat.RoomID(ev.Space.Name)
	if err != nil {
		return err
	}

	// Membership fields are written as sub-paths so other rooms survive.
	profile := map[string]any{
		"displayName": ev.User.DisplayName,
		"email":       ev.User.Email,
		"domainId":    ev.User.DomainID,
	}
	profile[store.Join("spaces", roomID, "spaceType")] = ev.Space.Type
	if ev.Space.DisplayName != "" {
		profile[store.Join("spaces", roomID, "displayName")] = ev.Space.DisplayName
	}
	room := model.Room{
		Type:        ev.Space.Type,
		DisplayName: ev.Space.DisplayName,
		SpaceType:   ev.Space.Type,
		InvitedBy:   userID,
		Users:       map[string]string{userID: ev.User.Email},
		Schedule:    b.cfg.DefaultTime,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.store.Update(gctx, model.UserPath(userID), profile) })
	g.Go(func() error { return b.store.Set(gctx, model.RoomPath(roomID), room) })
	if err := g.Wait(); err != nil {
		return err
	}
	b.log.Info("added to space", logx.String("space", roomID), logx.String("invited_by", userID))
	if room.Schedule == "" {
		return nil
	}
	return b.sched.Reconcile(ctx, roomID)
}

// removedFromSpace deletes the room and its job. Members keep their own
// profiles and status history.
func (b *Bot) removedFromSpace(ctx context.Context, ev chat.Event) error {
	if ev.Space == nil {
		return errors.New("REMOVED_FROM_SPACE event without space")
	}
	roomID, err := chat.RoomID(ev.Space.Name)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.store.Remove(gctx, model.RoomPath(roomID)) })
	g.Go(func() error {
		if err := b.sched.Unschedule(gctx, roomID); err != nil && !errors.Is(err, jobs.ErrNotFound) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	b.log.Info("removed from space", logx.String("space", roomID))
	return nil
}
