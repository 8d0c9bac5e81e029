// Package telegram runs the bot over Telegram long polling.
//
// Group messages addressed to the bot ("/schedule 9:30", "/schedule@Bot 9:30"
// or "@Bot schedule 9:30") become chat.Event values with the same shape the
// webhook receives: chats map to "spaces/{chatID}" and users to
// "users/{userID}". The adapter is also a chat.Sender for standup prompts.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token       string
	PollTimeout time.Duration
	RatePerSec  int
}

type EventHandler interface {
	HandleEvent(ctx context.Context, ev chat.Event) (*chat.Reply, error)
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	events  EventHandler
	done    chan struct{}
}

var _ chat.Sender = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, limiter: rate.NewLimiter(rate.Limit(rps), rps)}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		ev, ok := messageEvent(c.Message(), a.bot.Me.Username)
		if !ok {
			return nil
		}
		return a.dispatch(c, ev)
	})

	a.bot.Handle(tele.OnAddedToGroup, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		user, space := userOf(m.Sender), spaceOf(m.Chat)
		return a.dispatch(c, chat.Event{Type: chat.EventAddedToSpace, User: &user, Space: &space})
	})

	a.bot.Handle(tele.OnMyChatMember, func(c tele.Context) error {
		u := c.ChatMember()
		if u == nil || u.Chat == nil || u.NewChatMember == nil {
			return nil
		}
		if u.NewChatMember.Role != tele.Left && u.NewChatMember.Role != tele.Kicked {
			return nil
		}
		space := spaceOf(u.Chat)
		ev := chat.Event{Type: chat.EventRemovedFromSpace, Space: &space}
		if u.Sender != nil {
			user := userOf(u.Sender)
			ev.User = &user
		}
		// The bot can no longer post here; handle without replying.
		_, err := a.handle(ev)
		return err
	})
}

func (a *Adapter) handle(ev chat.Event) (*chat.Reply, error) {
	a.runMu.Lock()
	ctx, events := a.ctx, a.events
	a.runMu.Unlock()
	if events == nil {
		return nil, nil
	}
	reply, err := events.HandleEvent(ctx, ev)
	if err != nil {
		a.log.Error("telegram event failed", logx.String("type", string(ev.Type)), logx.Err(err))
		return nil, nil
	}
	return reply, nil
}

func (a *Adapter) dispatch(c tele.Context, ev chat.Event) error {
	reply, err := a.handle(ev)
	if err != nil || reply == nil || reply.Text == "" {
		return err
	}
	for _, chunk := range splitText(reply.Text, textLimit) {
		if err := c.Send(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Start begins long polling and routes events to events until Stop or ctx ends.
func (a *Adapter) Start(ctx context.Context, events EventHandler) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.events = events
	a.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		a.log.Info("polling started", logx.String("bot", a.bot.Me.Username))
		a.bot.Start()
		a.log.Info("polling stopped")
	}(a.done)
	go func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	}(a.ctx)
	return nil
}

// Stop ends polling, waiting at most a short grace window for the in-flight
// getUpdates call.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel, done := a.cancel, a.done
	a.runMu.Unlock()

	cancel()
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		a.log.Warn("telegram stop timed out")
	}
	return nil
}

// Send posts text into the chat whose id is roomID.
func (a *Adapter) Send(ctx context.Context, roomID, text string) error {
	id, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", roomID, err)
	}
	for _, chunk := range splitText(text, textLimit) {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := a.bot.Send(&tele.Chat{ID: id}, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return fmt.Errorf("telegram send to %d: %w", id, err)
		}
	}
	return nil
}

// Mention prefers the @username stored as the member's email.
func (a *Adapter) Mention(userID, email string) string {
	if strings.HasPrefix(email, "@") {
		return email
	}
	if strings.HasPrefix(userID, "@") {
		return userID
	}
	return "user " + userID
}

func spaceOf(c *tele.Chat) chat.Space {
	typ := "ROOM"
	if c.Type == tele.ChatPrivate {
		typ = "DM"
	}
	return chat.Space{
		Name:        "spaces/" + strconv.FormatInt(c.ID, 10),
		Type:        typ,
		DisplayName: c.Title,
		SpaceType:   string(c.Type),
	}
}

func userOf(u *tele.User) chat.User {
	typ := chat.UserHuman
	if u.IsBot {
		typ = chat.UserBot
	}
	out := chat.User{
		Name:        "users/" + strconv.FormatInt(u.ID, 10),
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Type:        typ,
	}
	if u.Username != "" {
		out.Email = "@" + u.Username
	}
	return out
}

// messageEvent converts a text message addressed to the bot. Messages that
// do not address it are ignored.
func messageEvent(m *tele.Message, botName string) (chat.Event, bool) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return chat.Event{}, false
	}
	arg, ok := argumentText(m.Text, botName)
	if !ok {
		return chat.Event{}, false
	}
	msg := &chat.Message{
		Name:         fmt.Sprintf("spaces/%d/messages/%d", m.Chat.ID, m.ID),
		Sender:       userOf(m.Sender),
		Text:         m.Text,
		ArgumentText: arg,
		Space:        spaceOf(m.Chat),
	}
	for _, e := range m.Entities {
		var u chat.User
		switch e.Type {
		case tele.EntityTMention:
			if e.User == nil {
				continue
			}
			u = userOf(e.User)
		case tele.EntityMention:
			name := strings.TrimPrefix(m.EntityText(e), "@")
			if name == "" || strings.EqualFold(name, botName) {
				continue
			}
			// Plain @mentions carry no user id; the username stands in for it.
			u = chat.User{Name: "users/@" + name, Email: "@" + name, Type: chat.UserHuman}
		default:
			continue
		}
		msg.Annotations = append(msg.Annotations, chat.Annotation{
			Type:        chat.AnnotationUserMention,
			StartIndex:  e.Offset,
			Length:      e.Length,
			UserMention: &chat.UserMention{User: u, Type: "ADD"},
		})
	}
	return chat.Event{Type: chat.EventMessage, Message: msg, Space: &msg.Space, User: &msg.Sender}, true
}

// argumentText strips the bot address from text: "/cmd@Bot rest" and
// "/cmd rest" become "cmd rest", "@Bot rest" becomes "rest".
func argumentText(text, botName string) (string, bool) {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, " ")
	switch {
	case strings.HasPrefix(first, "/"):
		cmd, target, found := strings.Cut(first[1:], "@")
		if found && !strings.EqualFold(target, botName) {
			return "", false
		}
		if cmd == "" {
			return "", false
		}
		return strings.TrimSpace(cmd + " " + rest), true
	case botName != "" && strings.EqualFold(first, "@"+botName):
		return strings.TrimSpace(rest), true
	}
	return "", false
}

// splitText cuts s into chunks of at most limit runes, preferring newlines.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}
