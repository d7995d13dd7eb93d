package chat

import (
	"sort"
	"sync"
)

type room struct {
	members map[ConnID]struct{}
	log     []Event
}

// RoomStore holds every room's member set and event log.
//
// Rooms are created on first join and never removed. The directory of
// advertised rooms is reconciled lazily: Snapshot drops names whose member
// set is empty, while their logs stay in memory so a later joiner still
// receives the full history.
type RoomStore struct {
	mu        sync.RWMutex
	rooms     map[string]*room
	directory map[string]struct{}
}

// NewRoomStore returns an empty RoomStore.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:     make(map[string]*room),
		directory: make(map[string]struct{}),
	}
}

func (s *RoomStore) roomLocked(name string) *room {
	r, ok := s.rooms[name]
	if !ok {
		r = &room{members: make(map[ConnID]struct{})}
		s.rooms[name] = r
	}
	return r
}

// Join adds id to the room, creating it if needed, and returns a copy of the
// room's history in append order. Joining twice is harmless.
func (s *RoomStore) Join(name string, id ConnID) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomLocked(name)
	r.members[id] = struct{}{}
	s.directory[name] = struct{}{}
	return append([]Event(nil), r.log...)
}

// Members returns the current member ids of the room in no particular order.
func (s *RoomStore) Members(name string) []ConnID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[name]
	if !ok {
		return nil
	}
	ids := make([]ConnID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// IsMember reports whether id currently belongs to the room.
func (s *RoomStore) IsMember(name string, id ConnID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[name]
	if !ok {
		return false
	}
	_, member := r.members[id]
	return member
}

// Append adds ev to the end of the room's log.
func (s *RoomStore) Append(name string, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomLocked(name)
	r.log = append(r.log, ev)
}

// Leave removes id from the room. Unknown rooms and non-members are ignored.
func (s *RoomStore) Leave(name string, id ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[name]; ok {
		delete(r.members, id)
	}
}

// History returns a copy of the room's log.
func (s *RoomStore) History(name string) ([]Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[name]
	if !ok {
		return nil, false
	}
	return append([]Event(nil), r.log...), true
}

// Snapshot lists every advertised room that has at least one member, sorted
// by name. Advertised rooms found empty are removed from the directory.
func (s *RoomStore) Snapshot() []RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]RoomInfo, 0, len(s.directory))
	for name := range s.directory {
		r := s.rooms[name]
		if r == nil || len(r.members) == 0 {
			delete(s.directory, name)
			continue
		}
		infos = append(infos, RoomInfo{Name: name, Members: len(r.members)})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
