package integration

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

// joinAll connects n clients to room one after the other and drains the
// join events each earlier member sees for later ones.
func joinAll(t *testing.T, ts *testhelpers.TestServer, room string, n int) []*websocket.Conn {
	t.Helper()

	conns := make([]*websocket.Conn, n)
	for i := range conns {
		conns[i] = testhelpers.Connect(t, ts)
		testhelpers.Join(t, conns[i], fmt.Sprintf("user%d", i), room, i)
	}
	for i, conn := range conns {
		for range n - 1 - i {
			testhelpers.ExpectFrame(t, conn, server.FrameJoin)
		}
	}
	return conns
}

// TestMultipleClientsSeeTheSameOrder has five clients post concurrently and
// checks that every member observes one identical sequence.
func TestMultipleClientsSeeTheSameOrder(t *testing.T) {
	const (
		numClients        = 5
		messagesPerClient = 10
	)

	ts := testhelpers.StartServer(t)
	conns := joinAll(t, ts, "Lobby", numClients)

	var g errgroup.Group
	for i, conn := range conns {
		g.Go(func() error {
			for j := range messagesPerClient {
				frame := server.InboundFrame{Type: server.FrameMessage, Text: fmt.Sprintf("%d-%d", i, j)}
				if err := conn.WriteJSON(frame); err != nil {
					return fmt.Errorf("client %d: %w", i, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("sending: %v", err)
	}

	total := numClients * messagesPerClient
	sequences := make([][]string, numClients)
	for i, conn := range conns {
		for range total {
			msg := testhelpers.ExpectFrame(t, conn, server.FrameMessage)
			sequences[i] = append(sequences[i], msg.Nickname+":"+msg.Text)
		}
	}

	for i := 1; i < numClients; i++ {
		for k := range total {
			if sequences[i][k] != sequences[0][k] {
				t.Fatalf("client %d diverges from client 0 at %d: %s vs %s", i, k, sequences[i][k], sequences[0][k])
			}
		}
	}

	// Each sender's messages keep their sending order.
	next := make(map[string]int)
	for _, entry := range sequences[0] {
		nick, text, _ := strings.Cut(entry, ":")
		var sender, index int
		if _, err := fmt.Sscanf(text, "%d-%d", &sender, &index); err != nil {
			t.Fatalf("parse %q: %v", entry, err)
		}
		if nick != fmt.Sprintf("user%d", sender) {
			t.Errorf("message %q attributed to %s", text, nick)
		}
		if index != next[nick] {
			t.Errorf("%s: expected message %d, got %d", nick, next[nick], index)
		}
		next[nick] = index + 1
	}

	history, ok := ts.Hub.Router().History("Lobby")
	if !ok {
		t.Fatal("Lobby history missing")
	}
	if got := len(history); got != numClients+total {
		t.Errorf("Expected %d events in history, got %d", numClients+total, got)
	}
}

// TestConcurrentNicknameClaims races several connections for one nickname.
func TestConcurrentNicknameClaims(t *testing.T) {
	const contenders = 8

	ts := testhelpers.StartServer(t)
	conns := make([]*websocket.Conn, contenders)
	for i := range conns {
		conns[i] = testhelpers.Connect(t, ts)
	}

	var winners, losers atomic.Int32
	var g errgroup.Group
	for i, conn := range conns {
		g.Go(func() error {
			frame := server.InboundFrame{Type: server.FrameJoin, Nickname: "alice", Room: fmt.Sprintf("room%d", i)}
			if err := conn.WriteJSON(frame); err != nil {
				return err
			}
			reply, err := testhelpers.ReadFrame(conn, testhelpers.DefaultReadTimeout)
			if err != nil {
				return fmt.Errorf("contender %d: %w", i, err)
			}
			switch string(reply.Type) {
			case server.FrameJoin:
				winners.Add(1)
			case string(chat.NoticeNicknameTaken):
				losers.Add(1)
			default:
				return fmt.Errorf("contender %d: unexpected frame %+v", i, reply)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if winners.Load() != 1 || losers.Load() != contenders-1 {
		t.Fatalf("Expected 1 winner and %d losers, got %d and %d", contenders-1, winners.Load(), losers.Load())
	}

	testhelpers.WaitFor(t, 2*time.Second, func() bool { return ts.Hub.ClientCount() == 1 })
	if rooms := ts.Hub.Router().ListRooms(); len(rooms) != 1 || rooms[0].Members != 1 {
		t.Errorf("Expected a single populated room, got %+v", rooms)
	}
}

// TestRoomsAreIsolated checks traffic in one room never reaches another.
func TestRoomsAreIsolated(t *testing.T) {
	ts := testhelpers.StartServer(t)

	alice := testhelpers.Connect(t, ts)
	bob := testhelpers.Connect(t, ts)
	testhelpers.Join(t, alice, "alice", "Lobby", 0)
	testhelpers.Join(t, bob, "bob", "Games", 0)

	testhelpers.SendFrame(t, alice, server.InboundFrame{Type: server.FrameMessage, Text: "lobby talk"})
	testhelpers.ExpectFrame(t, alice, server.FrameMessage)

	testhelpers.SendFrame(t, bob, server.InboundFrame{Type: server.FrameRoomInfo})
	list := testhelpers.ExpectFrame(t, bob, string(chat.NoticeRoomList))
	if len(list.Rooms) != 2 || list.Rooms[0].Name != "Games" || list.Rooms[1].Name != "Lobby" {
		t.Errorf("Expected Games and Lobby in the listing, got %+v", list.Rooms)
	}

	testhelpers.ExpectNoFrame(t, bob, 200*time.Millisecond)
}

// TestClientsComingAndGoing connects and drops clients concurrently while a
// watcher stays in the room.
func TestClientsComingAndGoing(t *testing.T) {
	const visitors = 10

	ts := testhelpers.StartServer(t)
	watcher := testhelpers.Connect(t, ts)
	testhelpers.Join(t, watcher, "watcher", "Lobby", 0)

	var g errgroup.Group
	for i := range visitors {
		g.Go(func() error {
			conn, _, err := testhelpers.ConnectWebSocket(ts.WebSocketURL(), testhelpers.TestOrigin)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			frame := server.InboundFrame{Type: server.FrameJoin, Nickname: fmt.Sprintf("visitor%d", i), Room: "Lobby"}
			if err := conn.WriteJSON(frame); err != nil {
				return err
			}
			for {
				reply, err := testhelpers.ReadFrame(conn, testhelpers.DefaultReadTimeout)
				if err != nil {
					return fmt.Errorf("visitor %d: %w", i, err)
				}
				if string(reply.Type) == server.FrameJoin && reply.Nickname == frame.Nickname {
					return testhelpers.CloseWebSocket(conn)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	joins, leaves := 0, 0
	for joins < visitors || leaves < visitors {
		frame := testhelpers.ExpectAnyFrame(t, watcher)
		switch string(frame.Type) {
		case server.FrameJoin:
			joins++
		case server.FrameLeave:
			leaves++
		}
	}

	testhelpers.WaitFor(t, 2*time.Second, func() bool { return ts.Hub.ClientCount() == 1 })
	rooms := ts.Hub.Router().ListRooms()
	if len(rooms) != 1 || rooms[0].Members != 1 {
		t.Errorf("Expected only the watcher to remain, got %+v", rooms)
	}
}
