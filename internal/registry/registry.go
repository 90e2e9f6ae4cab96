// Package registry tracks the game clients connected to this relay instance.
package registry

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/ssjmarx/The-Gold-Box-sub002/types"
)

// Registry is the authoritative map of live client connections on one
// relay instance, plus the token groups that tie sibling clients together.
//
// The registry is pure bookkeeping: presence publication, hooks, and
// metrics are driven by the relay around it. All methods are safe for
// concurrent use.
type Registry struct {
	clients *xsync.Map[string, *types.Client]
	groups  *xsync.Map[string, *tokenGroup]
}

// tokenGroup is the set of live clients sharing one auth token.
//
// A drained group is marked dead before removal so a concurrent Register
// never lands a member in a group that is about to disappear from the map.
type tokenGroup struct {
	mu      sync.Mutex
	dead    bool
	members map[string]*types.Client
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		clients: xsync.NewMap[string, *types.Client](),
		groups:  xsync.NewMap[string, *tokenGroup](),
	}
}

// Register adds a client under its ID and token group.
//
// Registration is first-writer-wins: if the ID already has a live entry,
// the existing connection stays untouched and ErrDuplicateClient is
// returned so the caller can reject the new socket.
//
// Parameters:
//   - client: Fully constructed client with an open socket
//
// Returns:
//   - error: types.ErrDuplicateClient if the ID is already registered
func (r *Registry) Register(client *types.Client) error {
	if _, loaded := r.clients.LoadOrStore(client.ID, client); loaded {
		return types.ErrDuplicateClient
	}

	r.addToGroup(client)

	return nil
}

// Unregister removes a client and its token-group membership.
//
// The group is dropped entirely when its last member leaves. Safe to call
// for IDs that were never registered.
//
// Parameters:
//   - id: Client ID to remove
//
// Returns:
//   - *types.Client: The removed client, or nil if the ID was not present
func (r *Registry) Unregister(id string) *types.Client {
	client, ok := r.clients.LoadAndDelete(id)
	if !ok {
		return nil
	}

	r.removeFromGroup(client)

	return client
}

// Get returns the live client for an ID.
func (r *Registry) Get(id string) (*types.Client, bool) {
	return r.clients.Load(id)
}

// Has reports whether an ID has a live connection on this instance.
func (r *Registry) Has(id string) bool {
	_, ok := r.clients.Load(id)
	return ok
}

// Broadcast sends payload to every other live member of the sender's
// token group.
//
// Delivery is best effort: a member whose socket write fails is skipped,
// never retried, and does not abort the fan-out. An unknown sender or a
// sender with no group yields zero deliveries.
//
// Parameters:
//   - senderID: Client originating the broadcast (excluded from delivery)
//   - payload: Value marshaled once per receiving socket
//
// Returns:
//   - int: Number of members the payload reached
func (r *Registry) Broadcast(senderID string, payload any) int {
	sender, ok := r.clients.Load(senderID)
	if !ok {
		return 0
	}

	group, ok := r.groups.Load(sender.Token)
	if !ok {
		return 0
	}

	group.mu.Lock()
	receivers := make([]*types.Client, 0, len(group.members))
	for id, member := range group.members {
		if id == senderID {
			continue
		}
		receivers = append(receivers, member)
	}
	group.mu.Unlock()

	delivered := 0
	for _, member := range receivers {
		if !member.Conn.IsOpen() {
			continue
		}
		if err := member.Conn.WriteJSON(payload); err == nil {
			delivered++
		}
	}

	return delivered
}

// ListConnected returns the IDs of locally live clients for a token.
//
// Only this instance's connections are listed; cross-instance visibility
// belongs to the presence directory.
func (r *Registry) ListConnected(tok string) []string {
	group, ok := r.groups.Load(tok)
	if !ok {
		return nil
	}

	group.mu.Lock()
	defer group.mu.Unlock()

	ids := make([]string, 0, len(group.members))
	for id := range group.members {
		ids = append(ids, id)
	}

	return ids
}

// Len returns the number of live connections on this instance.
func (r *Registry) Len() int {
	return r.clients.Size()
}

// Snapshot returns all live clients. Used by the liveness sweep and the
// shutdown path; the slice is a point-in-time copy.
func (r *Registry) Snapshot() []*types.Client {
	out := make([]*types.Client, 0, r.clients.Size())
	r.clients.Range(func(_ string, client *types.Client) bool {
		out = append(out, client)
		return true
	})

	return out
}

func (r *Registry) addToGroup(client *types.Client) {
	for {
		group, _ := r.groups.LoadOrStore(client.Token, &tokenGroup{members: make(map[string]*types.Client)})

		group.mu.Lock()
		if group.dead {
			// Lost a race with the group's removal; fetch a fresh one.
			group.mu.Unlock()
			continue
		}
		group.members[client.ID] = client
		group.mu.Unlock()

		return
	}
}

func (r *Registry) removeFromGroup(client *types.Client) {
	group, ok := r.groups.Load(client.Token)
	if !ok {
		return
	}

	group.mu.Lock()
	delete(group.members, client.ID)
	if len(group.members) == 0 {
		group.dead = true
		r.groups.Delete(client.Token)
	}
	group.mu.Unlock()
}
