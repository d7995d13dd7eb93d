// Package server translates between websocket JSON frames and the chat
// router's intents and notices.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Inbound frame types sent by clients.
const (
	FrameCheckNickname = "CheckNicknameAvailability"
	FrameJoin          = "ChatJoin"
	FrameMessage       = "ChatMessage"
	FrameLeave         = "ChatLeave"
	FrameRoomInfo      = "GetRoomInfo"
)

var (
	errMalformedFrame = errors.New("malformed frame")
	errUnknownFrame   = errors.New("unknown frame type")
)

// InboundFrame is the JSON shape of every client frame. Only the fields
// relevant to Type are read; a nickname sent with ChatMessage is ignored in
// favour of the one bound at join time.
type InboundFrame struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname,omitempty"`
	Room     string `json:"room,omitempty"`
	Text     string `json:"text,omitempty"`
}

// OutboundFrame is the JSON shape of every server frame.
type OutboundFrame struct {
	Type      chat.NoticeType `json:"type"`
	Room      string          `json:"room,omitempty"`
	Nickname  string          `json:"nickname,omitempty"`
	Text      string          `json:"text,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Rooms     []chat.RoomInfo `json:"rooms,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// roomListFrame always carries the rooms key, even for an empty listing.
type roomListFrame struct {
	Type  chat.NoticeType `json:"type"`
	Rooms []chat.RoomInfo `json:"rooms"`
}

func encodeNotice(n chat.Notice) ([]byte, error) {
	switch n.Type {
	case chat.NoticeRoomList:
		rooms := n.Rooms
		if rooms == nil {
			rooms = []chat.RoomInfo{}
		}
		return json.Marshal(roomListFrame{Type: n.Type, Rooms: rooms})
	case chat.NoticeError:
		return json.Marshal(OutboundFrame{Type: n.Type, Error: n.Error})
	case chat.NoticeNicknameAvailable, chat.NoticeNicknameTaken:
		return json.Marshal(OutboundFrame{Type: n.Type})
	default:
		ev := n.Event
		ts := ev.Timestamp
		return json.Marshal(OutboundFrame{
			Type:      n.Type,
			Room:      ev.Room,
			Nickname:  ev.Nickname,
			Text:      ev.Text,
			Timestamp: &ts,
		})
	}
}

// encodeNotices encodes each notice into its own frame. Notices that fail to
// encode are skipped.
func (h *Hub) encodeNotices(notices []chat.Notice) [][]byte {
	frames := make([][]byte, 0, len(notices))
	for _, n := range notices {
		frame, err := encodeNotice(n)
		if err != nil {
			h.logger.Error("failed to encode notice", "type", n.Type, "error", err)
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

// dispatch decodes one client frame and hands it to the router. Router
// errors have already been reported to the client; they are returned for
// logging only.
func (c *Client) dispatch(raw []byte) error {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return c.reportError(fmt.Errorf("%w: %v", errMalformedFrame, err))
	}

	router := c.hub.router
	switch frame.Type {
	case FrameCheckNickname:
		return router.CheckNickname(c.id, frame.Nickname)
	case FrameJoin:
		return router.Join(c.id, frame.Nickname, frame.Room)
	case FrameMessage:
		return router.Post(c.id, frame.Room, frame.Text)
	case FrameLeave:
		return router.Leave(c.id, frame.Room)
	case FrameRoomInfo:
		router.RoomList(c.id)
		return nil
	default:
		return c.reportError(fmt.Errorf("%w %q", errUnknownFrame, frame.Type))
	}
}

func (c *Client) reportError(err error) error {
	c.hub.Deliver([]chat.ConnID{c.id}, chat.ErrorNotice(err))
	return err
}
