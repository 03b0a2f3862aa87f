package mesh

import (
	"errors"
	"sort"
	"sync"

	"github.com/1ureka/mesh/internal/transport"
)

var errSuperseded = errors.New("entry no longer registered")

// registry is the peerID → entry table. The lock covers lookup, insert and
// remove only; sessions are allocated outside it, so one peer's allocation
// never stalls the others. When two callers race to create the same peer the
// loser's entry is discarded and both see the winner.
type registry struct {
	// alloc creates a new entry with its session and observers installed.
	alloc func(id string) (*entry, error)

	// discard releases an entry that lost an insert race.
	discard func(*entry)

	mu      sync.Mutex
	entries map[string]*entry
}

func newRegistry(alloc func(id string) (*entry, error), discard func(*entry)) *registry {
	return &registry{
		alloc:   alloc,
		discard: discard,
		entries: make(map[string]*entry),
	}
}

// getOrCreate returns the entry for id, allocating it on first use. The
// boolean reports whether the entry was created by this call.
func (r *registry) getOrCreate(id string) (*entry, bool, error) {
	return r.insert(id, nil)
}

// insert returns the registered entry for id, allocating one if needed, and
// queues jobs on it while the lock is held.
func (r *registry) insert(id string, jobs []job) (*entry, bool, error) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.enqueue(jobs...)
		r.mu.Unlock()
		return e, false, nil
	}
	r.mu.Unlock()

	fresh, err := r.alloc(id)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.enqueue(jobs...)
		r.mu.Unlock()
		r.discard(fresh)
		return e, false, nil
	}
	r.entries[id] = fresh
	fresh.enqueue(jobs...)
	r.mu.Unlock()
	return fresh, true, nil
}

// dispatch queues j on the entry for id. With create unset an unknown id is
// reported as ErrUnknownPeer instead of allocating an entry. Lookup and
// enqueue happen under the registry lock so no job can land on an entry that
// is being replaced.
func (r *registry) dispatch(id string, j job, create bool) (*entry, bool, error) {
	if create {
		return r.insert(id, []job{j})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false, ErrUnknownPeer
	}
	e.enqueue(j)
	return e, false, nil
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// remove deletes e if it is still the registered entry for id. Removing
// twice, or removing a stale entry, is a no-op reported as false.
func (r *registry) remove(id string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[id]; !ok || cur != e {
		return false
	}
	delete(r.entries, id)
	return true
}

// replace swaps old for a freshly allocated entry and queues first followed
// by the inbound envelopes old had not processed. The caller must release old.
func (r *registry) replace(old *entry, first job) (*entry, error) {
	if !r.holds(old) {
		return nil, errSuperseded
	}
	fresh, err := r.alloc(old.id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if cur, ok := r.entries[old.id]; !ok || cur != old {
		r.mu.Unlock()
		r.discard(fresh)
		return nil, errSuperseded
	}
	rest := old.supersede()
	r.entries[old.id] = fresh
	fresh.enqueue(append([]job{first}, rest...)...)
	r.mu.Unlock()
	return fresh, nil
}

// holds reports whether e is the registered entry for its id.
func (r *registry) holds(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[e.id]
	return ok && cur == e
}

// peerChannel pairs an open channel with its peer id.
type peerChannel struct {
	id      string
	channel transport.Channel
}

// openChannels snapshots every entry whose channel is currently open.
func (r *registry) openChannels() []peerChannel {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]peerChannel, 0, len(entries))
	for _, e := range entries {
		if ch, ok := e.openChannel(); ok {
			out = append(out, peerChannel{id: e.id, channel: ch})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ids returns the registered peer ids in sorted order.
func (r *registry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// closeAll empties the table and returns the removed entries. The caller
// releases them outside the lock.
func (r *registry) closeAll() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, e)
		delete(r.entries, id)
	}
	return out
}
