// Package chat models inbound chat events and the outbound send surface.
//
// The wire shapes follow the Google Chat event payload; other transports
// (Telegram) convert into the same types.
package chat

import (
	"context"
	"fmt"
	"strings"
)

type EventType string

const (
	EventAddedToSpace     EventType = "ADDED_TO_SPACE"
	EventRemovedFromSpace EventType = "REMOVED_FROM_SPACE"
	EventMessage          EventType = "MESSAGE"
)

const (
	UserHuman = "HUMAN"
	UserBot   = "BOT"

	AnnotationUserMention = "USER_MENTION"
)

type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Email       string `json:"email,omitempty"`
	Type        string `json:"type,omitempty"`
	DomainID    string `json:"domainId,omitempty"`
}

type Space struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	SpaceType   string `json:"spaceType,omitempty"`
}

type UserMention struct {
	User User   `json:"user"`
	Type string `json:"type,omitempty"`
}

type Annotation struct {
	Type        string       `json:"type"`
	StartIndex  int          `json:"startIndex,omitempty"`
	Length      int          `json:"length,omitempty"`
	UserMention *UserMention `json:"userMention,omitempty"`
}

type Message struct {
	Name         string       `json:"name,omitempty"`
	Sender       User         `json:"sender"`
	CreateTime   string       `json:"createTime,omitempty"`
	Text         string       `json:"text"`
	ArgumentText string       `json:"argumentText"`
	Annotations  []Annotation `json:"annotations,omitempty"`
	Space        Space        `json:"space"`
}

// Event is one inbound webhook delivery.
type Event struct {
	Type      EventType `json:"type"`
	EventTime string    `json:"eventTime,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	User      *User     `json:"user,omitempty"`
	Space     *Space    `json:"space,omitempty"`
}

// ArgumentText is the command text of the event, or "" when it carries none.
func (e Event) ArgumentText() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.ArgumentText
}

// Reply is the synchronous response to an event.
type Reply struct {
	Text string `json:"text"`
}

// MentionedUsers returns the humans mentioned in m, in annotation order.
func (m *Message) MentionedUsers() []User {
	var out []User
	for _, a := range m.Annotations {
		if a.Type != AnnotationUserMention || a.UserMention == nil {
			continue
		}
		if a.UserMention.User.Type != UserHuman || a.UserMention.User.Name == "" {
			continue
		}
		out = append(out, a.UserMention.User)
	}
	return out
}

// UserID returns the id of a "users/{id}" resource name.
func UserID(name string) (string, error) { return resourceID(name, "users") }

// RoomID returns the id of a "spaces/{id}" resource name.
func RoomID(name string) (string, error) { return resourceID(name, "spaces") }

func resourceID(name, collection string) (string, error) {
	parts := strings.Split(name, "/")
	if len(parts) < 2 || parts[0] != collection || parts[1] == "" {
		return "", fmt.Errorf("malformed %s name %q", collection, name)
	}
	return parts[1], nil
}

// Sender posts messages into rooms outside of a request/response cycle.
type Sender interface {
	Send(ctx context.Context, roomID, text string) error
	// Mention renders a user reference that notifies them.
	Mention(userID, email string) string
}
