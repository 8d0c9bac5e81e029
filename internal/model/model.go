// Package model holds the persisted room and user records and the store
// paths they live under.
//
//	spaces/{roomID}                           Room
//	spaces/{roomID}/users/{userID}            member email
//	users/{userID}                            profile (displayName, email, domainId)
//	users/{userID}/spaces/{roomID}            Membership
//	users/{userID}/spaces/{roomID}/updates/*  StatusUpdate (append-only)
package model

import "standupbot/internal/store"

// Room fields. Schedule, Days and TimeZone are empty when unset.
type Room struct {
	Type        string            `json:"type,omitempty"`
	DisplayName string            `json:"displayName,omitempty"`
	SpaceType   string            `json:"spaceType,omitempty"`
	InvitedBy   string            `json:"invitedBy,omitempty"`
	Users       map[string]string `json:"users,omitempty"`
	Schedule    string            `json:"schedule,omitempty"`
	Days        string            `json:"days,omitempty"`
	TimeZone    string            `json:"timeZone,omitempty"`
}

// Room field names as stored.
const (
	FieldSchedule = "schedule"
	FieldDays     = "days"
	FieldTimeZone = "timeZone"
	FieldUsers    = "users"
)

type Membership struct {
	DisplayName string                  `json:"displayName,omitempty"`
	SpaceType   string                  `json:"spaceType,omitempty"`
	Updates     map[string]StatusUpdate `json:"updates,omitempty"`
}

type StatusUpdate struct {
	Text string `json:"text"`
	// Time is unix milliseconds assigned by the store.
	Time int64 `json:"time"`
}

const (
	RoomsPath = "spaces"
	UsersPath = "users"
)

func RoomPath(roomID string) string { return store.Join(RoomsPath, roomID) }
func RoomField(roomID, field string) string { return store.Join(RoomsPath, roomID, field) }
func RoomUsersPath(roomID string) string { return RoomField(roomID, FieldUsers) }
func RoomMemberPath(roomID, userID string) string { return store.Join(RoomUsersPath(roomID), userID) }

func UserPath(userID string) string { return store.Join(UsersPath, userID) }
func UserRoomsPath(userID string) string { return store.Join(UsersPath, userID, "spaces") }
func MembershipPath(userID, roomID string) string { return store.Join(UserRoomsPath(userID), roomID) }
func UpdatesPath(userID, roomID string) string { return store.Join(MembershipPath(userID, roomID), "updates") }
