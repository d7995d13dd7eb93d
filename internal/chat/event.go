package chat

import "time"

// ConnID identifies one transport session. The gateway assigns it; the
// registry and room store only reference it.
type ConnID string

// EventKind tags the variant carried by an Event.
type EventKind string

// Event kinds. The values double as wire type names.
const (
	EventJoined EventKind = "ChatJoin"
	EventPosted EventKind = "ChatMessage"
	EventLeft   EventKind = "ChatLeave"
)

// Event is one immutable entry of a room's log. Text is only set for
// EventPosted.
type Event struct {
	Kind      EventKind `json:"type"`
	Room      string    `json:"room"`
	Nickname  string    `json:"nickname"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Joined builds a join event.
func Joined(room, nickname string, at time.Time) Event {
	return Event{Kind: EventJoined, Room: room, Nickname: nickname, Timestamp: at}
}

// Posted builds a message event.
func Posted(room, nickname, text string, at time.Time) Event {
	return Event{Kind: EventPosted, Room: room, Nickname: nickname, Text: text, Timestamp: at}
}

// Left builds a leave event.
func Left(room, nickname string, at time.Time) Event {
	return Event{Kind: EventLeft, Room: room, Nickname: nickname, Timestamp: at}
}

// RoomInfo is one entry of a room listing.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// NoticeType names an outbound notice.
type NoticeType string

// Notice types that are not room events.
const (
	NoticeNicknameAvailable NoticeType = "NicknameAvailable"
	NoticeNicknameTaken     NoticeType = "NicknameTaken"
	NoticeRoomList          NoticeType = "RoomInfo"
	NoticeError             NoticeType = "Error"
)

// Notice is a single router output. Exactly one of Event, Rooms or Error is
// meaningful, depending on Type.
type Notice struct {
	Type  NoticeType
	Event Event
	Rooms []RoomInfo
	Error string
}

// EventNotice wraps a room event for delivery.
func EventNotice(ev Event) Notice {
	return Notice{Type: NoticeType(ev.Kind), Event: ev}
}

// ErrorNotice reports a connection-local failure.
func ErrorNotice(err error) Notice {
	return Notice{Type: NoticeError, Error: err.Error()}
}

// Transport delivers notices to connections. Deliver must not block on a
// slow recipient: implementations queue per connection and close recipients
// whose queue is full. The notices of one call reach each recipient in
// order, as one queue entry. Close ends a connection; the transport is then
// responsible for calling Router.Disconnect for it.
type Transport interface {
	Deliver(recipients []ConnID, notices ...Notice)
	Close(id ConnID)
}
