package ws

import (
	"log/slog"
	"sync"

	"github.com/openplace/pixelfield/internal/metrics"
	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/protocol"
	"github.com/openplace/pixelfield/internal/services/session"
)

// Audience selects the recipients of a broadcast
type Audience int

const (
	AudienceAll Audience = iota
	AudienceObservers
	AudienceAdmins
)

// connRecord is one live connection. The registry owns the record for the
// connection's whole lifetime; transports are referenced through the Peer
// handle, never the other way around.
type connRecord struct {
	peer    Peer
	role    session.Role
	actorID model.ActorID
	name    string
}

// Registry is the process-wide set of live connections plus the derived
// ephemeral aggregates: the population count and the selection overlay.
// Connections are indexed by a stable slot id handed out at admission.
type Registry struct {
	mu         sync.Mutex
	conns      map[int]*connRecord
	nextSlot   int
	selections map[string]model.Position

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty Registry
func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		conns:      make(map[int]*connRecord),
		selections: make(map[string]model.Position),
		logger:     logger.With(slog.String("component", "registry")),
		metrics:    m,
	}
}

// Admit registers an authenticated connection and returns its slot id.
// Everyone learns the new population; administrators also get the refreshed
// presence list.
func (r *Registry) Admit(peer Peer, role session.Role, identity session.Identity) int {
	r.mu.Lock()
	slot := r.nextSlot
	r.nextSlot++
	r.conns[slot] = &connRecord{
		peer:    peer,
		role:    role,
		actorID: identity.ActorID,
		name:    identity.Name,
	}
	total := len(r.conns)
	r.mu.Unlock()

	r.metrics.ActiveConnections.Store(int64(total))
	r.logger.Info("connection admitted",
		slog.Int("slot", slot),
		slog.String("nickname", identity.Name),
		slog.Bool("admin", role == session.RoleAdmin),
		slog.Int("total_connections", total))

	r.broadcastPresence()
	return slot
}

// Remove unregisters a connection. Idempotent: removing an unknown or
// already-removed slot is a no-op. The slot's selection entry is cleared
// and the clearing is announced before the presence refresh.
func (r *Registry) Remove(slot int) {
	r.mu.Lock()
	rec, ok := r.conns[slot]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, slot)
	_, hadSelection := r.selections[rec.name]
	delete(r.selections, rec.name)
	total := len(r.conns)
	r.mu.Unlock()

	r.metrics.ActiveConnections.Store(int64(total))
	r.logger.Info("connection removed",
		slog.Int("slot", slot),
		slog.String("nickname", rec.name),
		slog.Int("total_connections", total))

	if hadSelection {
		r.Broadcast(protocol.MustMessage(protocol.TypeSelectionUpdate, protocol.SelectionBroadcast{
			Nickname: rec.name,
		}), AudienceAll)
	}
	r.broadcastPresence()
}

// Broadcast delivers a message to every connection in the audience.
// Delivery is best-effort per connection: a dead peer is removed from the
// registry and never blocks delivery to the rest.
func (r *Registry) Broadcast(message []byte, audience Audience) {
	r.mu.Lock()
	var failed []int
	sent := 0
	for slot, rec := range r.conns {
		if !audience.includes(rec.role) {
			continue
		}
		if err := rec.peer.Send(message); err != nil {
			failed = append(failed, slot)
			continue
		}
		sent++
	}
	r.mu.Unlock()

	r.metrics.MessagesOut.Add(int64(sent))
	for _, slot := range failed {
		r.logger.Warn("dropping unreachable connection", slog.Int("slot", slot))
		r.Remove(slot)
	}
}

func (a Audience) includes(role session.Role) bool {
	switch a {
	case AudienceObservers:
		return role == session.RoleObserver
	case AudienceAdmins:
		return role == session.RoleAdmin
	default:
		return true
	}
}

// UpdateSelection stores or clears a selection overlay entry and announces
// the change to everyone
func (r *Registry) UpdateSelection(nickname string, position *model.Position) {
	r.mu.Lock()
	if position != nil {
		r.selections[nickname] = *position
	} else {
		delete(r.selections, nickname)
	}
	r.mu.Unlock()

	r.Broadcast(protocol.MustMessage(protocol.TypeSelectionUpdate, protocol.SelectionBroadcast{
		Nickname: nickname,
		Position: position,
	}), AudienceAll)
}

// Selections returns a snapshot of the live selection overlay
func (r *Registry) Selections() []model.Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Selection, 0, len(r.selections))
	for nickname, position := range r.selections {
		out = append(out, model.Selection{Nickname: nickname, Position: position})
	}
	return out
}

// ClearSelections drops the whole overlay without announcements; used on
// game reset where every client is disconnected anyway
func (r *Registry) ClearSelections() {
	r.mu.Lock()
	r.selections = make(map[string]model.Position)
	r.mu.Unlock()
}

// OnlineCount returns the observer population
func (r *Registry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onlineCountLocked()
}

func (r *Registry) onlineCountLocked() int {
	count := 0
	for _, rec := range r.conns {
		if rec.role == session.RoleObserver {
			count++
		}
	}
	return count
}

// UsersInfo returns the connected observers for the administrator presence
// list
func (r *Registry) UsersInfo() []protocol.UserInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.UserInfo, 0, len(r.conns))
	for _, rec := range r.conns {
		if rec.role == session.RoleObserver {
			out = append(out, protocol.UserInfo{Nickname: rec.name, ID: string(rec.actorID)})
		}
	}
	return out
}

// KickActor force-closes every connection of the given actor with the given
// close code. Returns the number of connections kicked.
func (r *Registry) KickActor(actorID model.ActorID, code int, reason string) int {
	r.mu.Lock()
	var targets []int
	for slot, rec := range r.conns {
		if rec.role == session.RoleObserver && rec.actorID == actorID {
			targets = append(targets, slot)
		}
	}
	peers := make([]Peer, len(targets))
	for i, slot := range targets {
		peers[i] = r.conns[slot].peer
	}
	r.mu.Unlock()

	for i, slot := range targets {
		r.Remove(slot)
		peers[i].Close(code, reason)
	}
	return len(targets)
}

// ShutdownAll closes every connection with a "server going away" reason and
// clears all registry state
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	peers := make([]Peer, 0, len(r.conns))
	for _, rec := range r.conns {
		peers = append(peers, rec.peer)
	}
	r.conns = make(map[int]*connRecord)
	r.selections = make(map[string]model.Position)
	r.mu.Unlock()

	r.metrics.ActiveConnections.Store(0)
	for _, peer := range peers {
		peer.Close(protocol.CloseGoingAway, "server going away")
	}
	r.logger.Info("all connections shut down", slog.Int("closed", len(peers)))
}

// broadcastPresence pushes the population count to everyone and the full
// presence list to administrators
func (r *Registry) broadcastPresence() {
	r.Broadcast(protocol.MustMessage(protocol.TypeOnlineCountUpdate, protocol.OnlineCount{
		Online: r.OnlineCount(),
	}), AudienceAll)
	r.Broadcast(protocol.MustMessage(protocol.TypeUsersInfoUpdate, r.UsersInfo()), AudienceAdmins)
}

// PixelUpdated implements the canvas event sink by announcing an accepted
// cell write to every connection
func (r *Registry) PixelUpdated(cell model.Cell, nickname string) {
	r.Broadcast(protocol.MustMessage(protocol.TypePixelUpdate, protocol.PixelBroadcast{
		X:        cell.X,
		Y:        cell.Y,
		Color:    cell.Color,
		Nickname: nickname,
	}), AudienceAll)
}
