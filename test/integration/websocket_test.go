package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

// TestLobbyScenario walks two users through joining, chatting and
// disconnecting, then checks a late joiner sees the whole story.
func TestLobbyScenario(t *testing.T) {
	ts := testhelpers.StartServer(t)

	alice := testhelpers.Connect(t, ts)
	testhelpers.Join(t, alice, "alice", "Lobby", 0)

	bob := testhelpers.Connect(t, ts)
	replay := testhelpers.Join(t, bob, "bob", "Lobby", 1)
	if replay[0].Type != server.FrameJoin || replay[0].Nickname != "alice" {
		t.Errorf("Expected bob to replay alice's join, got %+v", replay[0])
	}

	joined := testhelpers.ExpectFrame(t, alice, server.FrameJoin)
	if joined.Nickname != "bob" || joined.Room != "Lobby" {
		t.Errorf("Expected alice to see bob join Lobby, got %+v", joined)
	}

	testhelpers.SendFrame(t, alice, server.InboundFrame{Type: server.FrameMessage, Text: "hi"})
	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		msg := testhelpers.ExpectFrame(t, conn, server.FrameMessage)
		if msg.Nickname != "alice" || msg.Text != "hi" || msg.Room != "Lobby" {
			t.Errorf("%s received unexpected message %+v", name, msg)
		}
	}

	if err := testhelpers.CloseWebSocket(bob); err != nil {
		t.Fatalf("close bob: %v", err)
	}
	left := testhelpers.ExpectFrame(t, alice, server.FrameLeave)
	if left.Nickname != "bob" || left.Room != "Lobby" {
		t.Errorf("Expected bob to leave Lobby, got %+v", left)
	}

	carol := testhelpers.Connect(t, ts)
	replay = testhelpers.Join(t, carol, "carol", "Lobby", 4)
	want := []struct{ kind, nickname string }{
		{server.FrameJoin, "alice"},
		{server.FrameJoin, "bob"},
		{server.FrameMessage, "alice"},
		{server.FrameLeave, "bob"},
	}
	for i, w := range want {
		if string(replay[i].Type) != w.kind || replay[i].Nickname != w.nickname {
			t.Errorf("replay[%d] = %s/%s, want %s/%s", i, replay[i].Type, replay[i].Nickname, w.kind, w.nickname)
		}
	}
	for i := 1; i < len(replay); i++ {
		if replay[i].Timestamp.Before(*replay[i-1].Timestamp) {
			t.Errorf("replay timestamps out of order at %d", i)
		}
	}
}

func TestNicknameCollisionClosesNewcomer(t *testing.T) {
	ts := testhelpers.StartServer(t)

	alice := testhelpers.Connect(t, ts)
	testhelpers.Join(t, alice, "alice", "Lobby", 0)

	impostor := testhelpers.Connect(t, ts)
	testhelpers.SendFrame(t, impostor, server.InboundFrame{Type: server.FrameJoin, Nickname: "alice", Room: "Other"})
	testhelpers.ExpectFrame(t, impostor, string(chat.NoticeNicknameTaken))

	_, err := testhelpers.ReadFrame(impostor, testhelpers.DefaultReadTimeout)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected the server to close the impostor, got %v", err)
	}

	testhelpers.SendFrame(t, alice, server.InboundFrame{Type: server.FrameRoomInfo})
	rooms := testhelpers.ExpectFrame(t, alice, string(chat.NoticeRoomList))
	if len(rooms.Rooms) != 1 || rooms.Rooms[0].Name != "Lobby" || rooms.Rooms[0].Members != 1 {
		t.Errorf("Collision must not touch any room, got %+v", rooms.Rooms)
	}
	testhelpers.ExpectNoFrame(t, alice, 200*time.Millisecond)
}

func TestNicknameIsReusableAfterDisconnect(t *testing.T) {
	ts := testhelpers.StartServer(t)

	first := testhelpers.Connect(t, ts)
	testhelpers.Join(t, first, "alice", "Lobby", 0)
	if err := testhelpers.CloseWebSocket(first); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := testhelpers.Connect(t, ts)
	testhelpers.WaitFor(t, 2*time.Second, func() bool {
		testhelpers.SendFrame(t, second, server.InboundFrame{Type: server.FrameCheckNickname, Nickname: "alice"})
		return testhelpers.ExpectAnyFrame(t, second).Type == chat.NoticeNicknameAvailable
	})

	replay := testhelpers.Join(t, second, "alice", "Lobby", 2)
	if replay[1].Type != server.FrameLeave {
		t.Errorf("Expected the old session's leave in the replay, got %+v", replay[1])
	}
}

func TestCheckNicknameAvailability(t *testing.T) {
	ts := testhelpers.StartServer(t)

	alice := testhelpers.Connect(t, ts)
	testhelpers.Join(t, alice, "alice", "Lobby", 0)

	checker := testhelpers.Connect(t, ts)
	testhelpers.SendFrame(t, checker, server.InboundFrame{Type: server.FrameCheckNickname, Nickname: "alice"})
	testhelpers.ExpectFrame(t, checker, string(chat.NoticeNicknameTaken))

	testhelpers.SendFrame(t, checker, server.InboundFrame{Type: server.FrameCheckNickname, Nickname: "bob"})
	testhelpers.ExpectFrame(t, checker, string(chat.NoticeNicknameAvailable))

	// Checking does not reserve, and the checker stays open.
	testhelpers.Join(t, checker, "bob", "Lobby", 1)
}

func TestOutOfStateFramesAreRejected(t *testing.T) {
	ts := testhelpers.StartServer(t)
	conn := testhelpers.Connect(t, ts)

	frames := []server.InboundFrame{
		{Type: server.FrameMessage, Text: "too early"},
		{Type: server.FrameLeave, Room: "Lobby"},
		{Type: server.FrameJoin, Room: "Lobby"},
		{Type: "Shout"},
	}
	for _, frame := range frames {
		testhelpers.SendFrame(t, conn, frame)
		reply := testhelpers.ExpectFrame(t, conn, string(chat.NoticeError))
		if reply.Error == "" {
			t.Errorf("Expected an error description for %s", frame.Type)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	testhelpers.ExpectFrame(t, conn, string(chat.NoticeError))

	// None of the rejections closed the connection.
	testhelpers.Join(t, conn, "alice", "Lobby", 0)

	testhelpers.SendFrame(t, conn, server.InboundFrame{Type: server.FrameMessage, Text: ""})
	testhelpers.ExpectFrame(t, conn, string(chat.NoticeError))
	testhelpers.SendFrame(t, conn, server.InboundFrame{Type: server.FrameMessage, Room: "Elsewhere", Text: "hi"})
	testhelpers.ExpectFrame(t, conn, string(chat.NoticeError))
}

func TestDefaultRoomAndExplicitLeave(t *testing.T) {
	ts := testhelpers.StartServer(t)

	alice := testhelpers.Connect(t, ts)
	bob := testhelpers.Connect(t, ts)
	testhelpers.Join(t, alice, "alice", "", 0)
	testhelpers.Join(t, bob, "bob", "", 1)

	joined := testhelpers.ExpectFrame(t, alice, server.FrameJoin)
	if joined.Room != chat.DefaultRoom {
		t.Errorf("Expected the default room %q, got %q", chat.DefaultRoom, joined.Room)
	}

	testhelpers.SendFrame(t, bob, server.InboundFrame{Type: server.FrameLeave})
	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		left := testhelpers.ExpectFrame(t, conn, server.FrameLeave)
		if left.Nickname != "bob" || left.Room != chat.DefaultRoom {
			t.Errorf("%s saw unexpected leave %+v", name, left)
		}
	}

	// The nickname stays bound after leaving the last room.
	checker := testhelpers.Connect(t, ts)
	testhelpers.SendFrame(t, checker, server.InboundFrame{Type: server.FrameCheckNickname, Nickname: "bob"})
	testhelpers.ExpectFrame(t, checker, string(chat.NoticeNicknameTaken))

	testhelpers.Join(t, bob, "bob", "Lobby", 0)
}

func TestMultiRoomMembership(t *testing.T) {
	ts := testhelpers.StartServer(t)

	alice := testhelpers.Connect(t, ts)
	testhelpers.Join(t, alice, "alice", "Lobby", 0)
	testhelpers.Join(t, alice, "alice", "Games", 0)

	bob := testhelpers.Connect(t, ts)
	testhelpers.Join(t, bob, "bob", "Games", 1)
	testhelpers.ExpectFrame(t, alice, server.FrameJoin)

	testhelpers.SendFrame(t, alice, server.InboundFrame{Type: server.FrameMessage, Text: "everywhere"})
	rooms := map[string]bool{}
	for range 2 {
		msg := testhelpers.ExpectFrame(t, alice, server.FrameMessage)
		rooms[msg.Room] = true
	}
	if !rooms["Lobby"] || !rooms["Games"] {
		t.Errorf("Expected the message in both rooms, got %v", rooms)
	}
	if msg := testhelpers.ExpectFrame(t, bob, server.FrameMessage); msg.Room != "Games" {
		t.Errorf("bob should only see the Games copy, got %+v", msg)
	}

	testhelpers.SendFrame(t, alice, server.InboundFrame{Type: server.FrameMessage, Room: "Lobby", Text: "lobby only"})
	if msg := testhelpers.ExpectFrame(t, alice, server.FrameMessage); msg.Room != "Lobby" {
		t.Errorf("Expected a Lobby-only message, got %+v", msg)
	}

	if err := testhelpers.CloseWebSocket(alice); err != nil {
		t.Fatalf("close: %v", err)
	}
	left := testhelpers.ExpectFrame(t, bob, server.FrameLeave)
	if left.Nickname != "alice" || left.Room != "Games" {
		t.Errorf("Expected alice to leave Games, got %+v", left)
	}
	testhelpers.ExpectNoFrame(t, bob, 200*time.Millisecond)
}

func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	ts := testhelpers.StartServer(t)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, method, ts.URL()+"/ws")
			defer func() { _ = resp.Body.Close() }()
			testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
		})
	}
}
