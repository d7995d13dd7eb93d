package chat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// DefaultRoom is joined when a client asks for an empty room name.
const DefaultRoom = "Public"

// State is the protocol state of one connection.
type State int

// Connection states.
const (
	StateConnected State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// session is guarded by its own mutex, held for the whole of every
// operation on the connection. Lock order is session, then room.
type session struct {
	mu       sync.Mutex
	state    State
	nickname string
	rooms    []string
}

func (s *session) inRoom(name string) bool {
	return slices.Contains(s.rooms, name)
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used for chat events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithDefaultRoom overrides the room joined for an empty room name.
func WithDefaultRoom(name string) Option {
	return func(r *Router) {
		if name != "" {
			r.defaultRoom = name
		}
	}
}

// Router is the protocol state machine. It validates each inbound intent
// against the Registry and RoomStore, mutates them, and hands the resulting
// notices to the Transport.
//
// Every mutation of a room happens under that room's mutex, including the
// enqueue of the resulting notices, so all members observe a room's events
// in log order. The Transport only queues; no network write happens while a
// room mutex is held.
type Router struct {
	registry    *Registry
	store       *RoomStore
	transport   Transport
	logger      *slog.Logger
	now         func() time.Time
	defaultRoom string

	mu        sync.Mutex
	sessions  map[ConnID]*session
	roomLocks map[string]*sync.Mutex
}

// NewRouter returns a Router over the given registry and store.
func NewRouter(registry *Registry, store *RoomStore, transport Transport, opts ...Option) *Router {
	r := &Router{
		registry:    registry,
		store:       store,
		transport:   transport,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		defaultRoom: DefaultRoom,
		sessions:    make(map[ConnID]*session),
		roomLocks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect starts tracking a freshly opened connection.
func (r *Router) Connect(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		r.sessions[id] = &session{state: StateConnected}
	}
}

// State returns the protocol state of id. Unknown connections are Closed.
func (r *Router) State(id ConnID) State {
	sess, ok := r.lookup(id)
	if !ok {
		return StateClosed
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

// Rooms returns the rooms id currently belongs to, in join order.
func (r *Router) Rooms(id ConnID) []string {
	sess, ok := r.lookup(id)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return slices.Clone(sess.rooms)
}

func (r *Router) lookup(id ConnID) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

func (r *Router) lockRoom(name string) func() {
	r.mu.Lock()
	l, ok := r.roomLocks[name]
	if !ok {
		l = &sync.Mutex{}
		r.roomLocks[name] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// reject reports err to the offending connection only.
func (r *Router) reject(id ConnID, err error) error {
	r.logger.Debug("rejected client event", "conn", id, "error", err)
	r.transport.Deliver([]ConnID{id}, ErrorNotice(err))
	return err
}

// CheckNickname answers whether nickname is free without reserving it.
func (r *Router) CheckNickname(id ConnID, nickname string) error {
	if nickname == "" {
		return r.reject(id, ErrInvalidNickname)
	}

	notice := Notice{Type: NoticeNicknameAvailable}
	if !r.registry.Available(nickname) {
		notice.Type = NoticeNicknameTaken
	}
	r.transport.Deliver([]ConnID{id}, notice)
	return nil
}

// Join binds nickname to id and adds id to room.
//
// The nickname is reserved before anything touches the room. A collision
// closes the connection: the first holder of a name wins. On success the
// joiner is sent the room history, then every member, the joiner included,
// is sent the new join event.
//
// A connection that already joined one room may join others under the same
// nickname.
func (r *Router) Join(id ConnID, nickname, roomName string) error {
	sess, ok := r.lookup(id)
	if !ok {
		return r.reject(id, ErrInvalidState)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if nickname == "" {
		return r.reject(id, ErrInvalidNickname)
	}
	if roomName == "" {
		roomName = r.defaultRoom
	}

	switch sess.state {
	case StateClosed:
		return r.reject(id, ErrInvalidState)
	case StateIdentified:
		if nickname != sess.nickname {
			return r.reject(id, fmt.Errorf("%w: already identified as %q", ErrInvalidState, sess.nickname))
		}
		if sess.inRoom(roomName) {
			return r.reject(id, fmt.Errorf("%w: already in room %q", ErrInvalidState, roomName))
		}
	case StateConnected:
		if err := r.registry.Reserve(nickname, id); err != nil {
			if errors.Is(err, ErrNicknameTaken) {
				r.logger.Warn("nickname collision, closing connection", "conn", id, "nickname", nickname, "room", roomName)
				// Frames already read from the socket must not revive it.
				sess.state = StateClosed
				r.transport.Deliver([]ConnID{id}, Notice{Type: NoticeNicknameTaken})
				r.transport.Close(id)
				return fmt.Errorf("join %q as %q: %w", roomName, nickname, err)
			}
			return r.reject(id, err)
		}
		sess.state = StateIdentified
		sess.nickname = nickname
	}

	unlock := r.lockRoom(roomName)
	defer unlock()

	history := r.store.Join(roomName, id)
	sess.rooms = append(sess.rooms, roomName)

	if len(history) > 0 {
		replay := make([]Notice, len(history))
		for i, ev := range history {
			replay[i] = EventNotice(ev)
		}
		r.transport.Deliver([]ConnID{id}, replay...)
	}

	ev := Joined(roomName, nickname, r.now())
	r.store.Append(roomName, ev)
	r.transport.Deliver(r.store.Members(roomName), EventNotice(ev))

	r.logger.Info("joined room", "room", roomName, "nickname", nickname, "conn", id, "replayed", len(history))
	return nil
}

// Post appends a message to every room id belongs to, or to roomName alone
// when it is set.
func (r *Router) Post(id ConnID, roomName, text string) error {
	sess, ok := r.lookup(id)
	if !ok {
		return r.reject(id, ErrInvalidState)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateIdentified {
		return r.reject(id, ErrInvalidState)
	}
	if text == "" {
		return r.reject(id, ErrEmptyMessage)
	}

	targets := slices.Clone(sess.rooms)
	if roomName != "" {
		if !sess.inRoom(roomName) {
			return r.reject(id, fmt.Errorf("%w %q", ErrUnknownRoom, roomName))
		}
		targets = []string{roomName}
	}
	if len(targets) == 0 {
		return r.reject(id, fmt.Errorf("%w: no rooms joined", ErrUnknownRoom))
	}

	at := r.now()
	for _, name := range targets {
		r.appendAndBroadcast(name, Posted(name, sess.nickname, text, at), nil)
	}

	r.logger.Info("message posted", "nickname", sess.nickname, "rooms", targets)
	r.logger.Debug("message text", "nickname", sess.nickname, "text", text)
	return nil
}

// Leave removes id from roomName. The leaver and the remaining members all
// receive the leave event.
func (r *Router) Leave(id ConnID, roomName string) error {
	sess, ok := r.lookup(id)
	if !ok {
		return r.reject(id, ErrInvalidState)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateIdentified {
		return r.reject(id, ErrInvalidState)
	}
	if roomName == "" {
		roomName = r.defaultRoom
	}
	if !sess.inRoom(roomName) {
		return r.reject(id, fmt.Errorf("%w %q", ErrUnknownRoom, roomName))
	}

	r.leaveRoom(sess, id, roomName, true)
	return nil
}

// Disconnect tears down everything id holds: one leave event per joined
// room, then the nickname binding. Later calls for the same id do nothing.
func (r *Router) Disconnect(id ConnID) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		r.registry.Release(id)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == StateClosed {
		return
	}
	for _, name := range slices.Clone(sess.rooms) {
		r.leaveRoom(sess, id, name, false)
	}
	r.registry.Release(id)
	sess.state = StateClosed

	if sess.nickname != "" {
		r.logger.Info("connection closed", "conn", id, "nickname", sess.nickname)
	} else {
		r.logger.Debug("connection closed before join", "conn", id)
	}
}

// RoomList sends id the current non-empty rooms with their populations.
func (r *Router) RoomList(id ConnID) {
	r.transport.Deliver([]ConnID{id}, Notice{Type: NoticeRoomList, Rooms: r.store.Snapshot()})
}

// ListRooms returns the current non-empty rooms.
func (r *Router) ListRooms() []RoomInfo {
	return r.store.Snapshot()
}

// History returns the log of the named room.
func (r *Router) History(roomName string) ([]Event, bool) {
	return r.store.History(roomName)
}

// leaveRoom must be called with sess.mu held.
func (r *Router) leaveRoom(sess *session, id ConnID, name string, notifyLeaver bool) {
	unlock := r.lockRoom(name)
	defer unlock()

	r.store.Leave(name, id)
	sess.rooms = slices.DeleteFunc(sess.rooms, func(joined string) bool { return joined == name })

	var extra []ConnID
	if notifyLeaver {
		extra = []ConnID{id}
	}
	r.appendLocked(name, Left(name, sess.nickname, r.now()), extra)

	r.logger.Info("left room", "room", name, "nickname", sess.nickname, "conn", id)
}

func (r *Router) appendAndBroadcast(name string, ev Event, extra []ConnID) {
	unlock := r.lockRoom(name)
	defer unlock()
	r.appendLocked(name, ev, extra)
}

// appendLocked must be called with the room mutex held.
func (r *Router) appendLocked(name string, ev Event, extra []ConnID) {
	r.store.Append(name, ev)
	recipients := append(r.store.Members(name), extra...)
	if len(recipients) == 0 {
		return
	}
	r.transport.Deliver(recipients, EventNotice(ev))
}
