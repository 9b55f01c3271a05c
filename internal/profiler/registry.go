package profiler

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ScopeID identifies a (name, target) pair inside streams. Zero is unused.
type ScopeID uint32

// ScopeDetails describes a registered scope.
type ScopeDetails struct {
	ID     ScopeID `msgpack:"id"`
	Name   string  `msgpack:"name"`
	Target string  `msgpack:"target"`
}

type scopeName struct {
	name, target string
}

// ScopeRegistry interns scope names so streams only carry ids.
type ScopeRegistry struct {
	byHash sync.Map // uint64 -> ScopeDetails

	mu      sync.Mutex
	exact   map[scopeName]ScopeID
	details []ScopeDetails
	delta   []ScopeDetails
}

// NewScopeRegistry creates an empty registry.
func NewScopeRegistry() *ScopeRegistry {
	return &ScopeRegistry{exact: make(map[scopeName]ScopeID)}
}

// Intern returns the id for name and target, registering it on first use.
func (r *ScopeRegistry) Intern(name, target string) ScopeID {
	key := hashScope(name, target)
	if v, ok := r.byHash.Load(key); ok {
		if d := v.(ScopeDetails); d.Name == name && d.Target == target {
			return d.ID
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sn := scopeName{name: name, target: target}
	if id, ok := r.exact[sn]; ok {
		return id
	}

	d := ScopeDetails{ID: ScopeID(len(r.details) + 1), Name: name, Target: target}
	r.details = append(r.details, d)
	r.delta = append(r.delta, d)
	r.exact[sn] = d.ID
	// On a hash collision the first pair keeps the fast path.
	r.byHash.LoadOrStore(key, d)
	return d.ID
}

// Lookup returns the details registered for id.
func (r *ScopeRegistry) Lookup(id ScopeID) (ScopeDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == 0 || int(id) > len(r.details) {
		return ScopeDetails{}, false
	}
	return r.details[id-1], true
}

// All returns a copy of every registered scope ordered by id.
func (r *ScopeRegistry) All() []ScopeDetails {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ScopeDetails, len(r.details))
	copy(out, r.details)
	return out
}

// TakeDelta returns the scopes registered since the previous call.
func (r *ScopeRegistry) TakeDelta() []ScopeDetails {
	r.mu.Lock()
	defer r.mu.Unlock()

	delta := r.delta
	r.delta = nil
	return delta
}

func hashScope(name, target string) uint64 {
	var d xxhash.Digest
	d.Reset()
	_, _ = d.WriteString(target)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(name)
	return d.Sum64()
}
