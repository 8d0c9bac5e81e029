package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceIDs(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) (string, error)
		in      string
		want    string
		wantErr bool
	}{
		{name: "user", fn: UserID, in: "users/123", want: "123"},
		{name: "room", fn: RoomID, in: "spaces/AAAA", want: "AAAA"},
		{name: "room with message suffix", fn: RoomID, in: "spaces/AAAA/messages/x", want: "AAAA"},
		{name: "empty", fn: UserID, in: "", wantErr: true},
		{name: "no id", fn: RoomID, in: "spaces/", wantErr: true},
		{name: "wrong collection", fn: UserID, in: "spaces/AAAA", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMessageEvent(t *testing.T) {
	raw := `{
		"type": "MESSAGE",
		"message": {
			"sender": {"name": "users/1", "email": "a@example.com", "type": "HUMAN"},
			"text": "@Standup add @Bob @Bot",
			"argumentText": " add @Bob @Bot",
			"space": {"name": "spaces/S1", "type": "ROOM", "displayName": "Team"},
			"annotations": [
				{"type": "USER_MENTION", "userMention": {"user": {"name": "users/2", "email": "b@example.com", "type": "HUMAN"}}},
				{"type": "USER_MENTION", "userMention": {"user": {"name": "users/9", "type": "BOT"}}},
				{"type": "SLASH_COMMAND"}
			]
		}
	}`
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, " add @Bob @Bot", ev.ArgumentText())

	users := ev.Message.MentionedUsers()
	require.Len(t, users, 1)
	assert.Equal(t, "b@example.com", users[0].Email)
}

func TestArgumentTextWithoutMessage(t *testing.T) {
	assert.Equal(t, "", Event{Type: EventRemovedFromSpace}.ArgumentText())
}
