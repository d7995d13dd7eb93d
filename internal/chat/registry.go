package chat

import "sync"

// Registry binds connections to nicknames. Nicknames are unique across the
// whole process, so every mutation goes through one mutex.
type Registry struct {
	mu     sync.RWMutex
	byConn map[ConnID]string
	byName map[string]ConnID
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[ConnID]string),
		byName: make(map[string]ConnID),
	}
}

// Reserve claims nickname for id in a single check-and-set. It returns
// ErrNicknameTaken when another connection holds the name and
// ErrInvalidState when id is already bound to a different name. Reserving
// the name id already holds succeeds.
func (r *Registry) Reserve(nickname string, id ConnID) error {
	if nickname == "" {
		return ErrInvalidNickname
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.byName[nickname]; ok {
		if holder == id {
			return nil
		}
		return ErrNicknameTaken
	}
	if _, bound := r.byConn[id]; bound {
		return ErrInvalidState
	}

	r.byName[nickname] = id
	r.byConn[id] = nickname
	return nil
}

// Release drops any binding held by id. Safe to call more than once.
func (r *Registry) Release(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nickname, ok := r.byConn[id]
	if !ok {
		return
	}
	delete(r.byConn, id)
	if r.byName[nickname] == id {
		delete(r.byName, nickname)
	}
}

// NicknameOf returns the nickname bound to id.
func (r *Registry) NicknameOf(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nickname, ok := r.byConn[id]
	return nickname, ok
}

// ConnectionOf returns the connection holding nickname.
func (r *Registry) ConnectionOf(nickname string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[nickname]
	return id, ok
}

// Available reports whether nickname is currently unclaimed. The answer may
// be stale by the time the caller acts on it; only Reserve is authoritative.
func (r *Registry) Available(nickname string) bool {
	_, taken := r.ConnectionOf(nickname)
	return !taken
}

// Len returns the number of bound connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
