package standup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standupbot/internal/model"
	"standupbot/internal/store"
	logx "standupbot/pkg/logx"
)

type sent struct {
	room string
	text string
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(_ context.Context, roomID, text string) error {
	f.sent = append(f.sent, sent{roomID, text})
	return f.err
}

func (f *fakeSender) Mention(userID, _ string) string { return "<users/" + userID + ">" }

func TestMessage(t *testing.T) {
	// 2024-09-03 05:00 UTC is still Sept 2 in Los Angeles.
	now := time.Date(2024, time.September, 3, 5, 0, 0, 0, time.UTC)
	room := model.Room{Users: map[string]string{"b": "b@x", "a": "a@x", "c": "c@x"}}
	s := &fakeSender{}

	got := Message(room, now, "America/Los_Angeles", s.Mention)
	assert.Equal(t, "It's time for the Sept 2 standup <users/a>, <users/b>, <users/c>!\n"+prompt, got)

	room.TimeZone = "Asia/Tokyo"
	got = Message(room, now, "America/Los_Angeles", s.Mention)
	assert.Contains(t, got, "Sept 3 standup")
}

func TestMessageMonthNames(t *testing.T) {
	s := &fakeSender{}
	for i, want := range monthNames {
		now := time.Date(2024, time.Month(i+1), 15, 12, 0, 0, 0, time.UTC)
		assert.Contains(t, Message(model.Room{}, now, "UTC", s.Mention), "the "+want+" 15 standup!")
	}
}

func TestMessageBadZoneFallsBack(t *testing.T) {
	now := time.Date(2024, time.January, 1, 3, 0, 0, 0, time.UTC)
	got := Message(model.Room{TimeZone: "Not/AZone"}, now, "America/Los_Angeles", (&fakeSender{}).Mention)
	assert.Contains(t, got, "Dec 31 standup")
}

func TestStandupSendsToRoom(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.Set(ctx, model.RoomPath("S1"), model.Room{
		Schedule: "9:30",
		Users:    map[string]string{"1": "a@example.com"},
	}))
	s := &fakeSender{}
	d := New(st, s, "America/Los_Angeles", logx.Nop())
	d.now = func() time.Time { return time.Date(2024, time.May, 10, 18, 0, 0, 0, time.UTC) }

	require.NoError(t, d.Standup(ctx, "S1"))
	require.Len(t, s.sent, 1)
	assert.Equal(t, "S1", s.sent[0].room)
	assert.Equal(t, "It's time for the May 10 standup <users/1>!\n"+prompt, s.sent[0].text)
}

func TestStandupUnknownRoomStillSends(t *testing.T) {
	s := &fakeSender{}
	d := New(store.NewMemory(), s, "UTC", logx.Nop())
	require.NoError(t, d.Standup(context.Background(), "GHOST"))
	require.Len(t, s.sent, 1)
	assert.Equal(t, "GHOST", s.sent[0].room)
}

func TestStandupSendError(t *testing.T) {
	s := &fakeSender{err: errors.New("offline")}
	d := New(store.NewMemory(), s, "UTC", logx.Nop())
	assert.ErrorContains(t, d.Standup(context.Background(), "S1"), "offline")
}
