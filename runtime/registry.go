package runtime

import (
	"secure-chat/contract"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

type member struct {
	channel contract.Channel
	order   uint64
}

// Registry is the set of active channels eligible for broadcast.
// Only membership changes take the write lock; broadcasts work on snapshots.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]member // map connection -> channel
	next     uint64
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]member)}
}

// Add registers a channel under id. It returns false when id is already taken.
func (r *Registry) Add(id string, channel contract.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return false
	}
	r.next++
	r.sessions[id] = member{channel: channel, order: r.next}
	return true
}

// Remove deletes id and reports whether this call removed it.
// Concurrent removals of the same id succeed exactly once.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Get(id string) (contract.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.sessions[id]
	return m.channel, ok
}

// Snapshot copies the members in join order. The result is safe to iterate
// while the registry keeps changing.
func (r *Registry) Snapshot() []contract.Entry {
	r.mu.RLock()
	ids := lo.Keys(r.sessions)
	members := make(map[string]member, len(ids))
	for _, id := range ids {
		members[id] = r.sessions[id]
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		return members[ids[i]].order < members[ids[j]].order
	})
	return lo.Map(ids, func(id string, _ int) contract.Entry {
		return contract.Entry{ID: id, Channel: members[id].channel}
	})
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll empties the registry and closes every channel it held.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]member)
	r.mu.Unlock()

	for _, m := range sessions {
		_ = m.channel.Close()
	}
}
