package ws

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/openplace/pixelfield/internal/metrics"
	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/protocol"
	"github.com/openplace/pixelfield/internal/services/session"
	"github.com/openplace/pixelfield/internal/testutil"
)

// fakePeer collects sent messages in memory
type fakePeer struct {
	mu       sync.Mutex
	messages [][]byte
	failSend bool

	closed      bool
	closeCode   int
	closeReason string
}

func (p *fakePeer) Send(message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSend {
		return ErrPeerGone
	}
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakePeer) Close(code int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCode = code
	p.closeReason = reason
}

// received returns the decoded envelopes of every message with the given
// type, in delivery order
func (p *fakePeer) received(msgType string) []protocol.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []protocol.Envelope
	for _, raw := range p.messages {
		var env protocol.Envelope
		if json.Unmarshal(raw, &env) == nil && env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func (p *fakePeer) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type RegistrySuite struct {
	suite.Suite
	registry *Registry
	metrics  *metrics.Metrics
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.metrics = metrics.New()
	s.registry = NewRegistry(testutil.NopLogger(), s.metrics)
}

func (s *RegistrySuite) admitObserver(actorID, name string) (*fakePeer, int) {
	peer := &fakePeer{}
	slot := s.registry.Admit(peer, session.RoleObserver, session.Identity{
		ActorID: model.ActorID(actorID),
		Name:    name,
	})
	return peer, slot
}

func (s *RegistrySuite) admitAdmin(name string) (*fakePeer, int) {
	peer := &fakePeer{}
	slot := s.registry.Admit(peer, session.RoleAdmin, session.Identity{
		ActorID: "admin-1",
		Name:    name,
	})
	return peer, slot
}

func (s *RegistrySuite) TestAdmitAnnouncesPopulation() {
	alice, _ := s.admitObserver("actor-1", "Alice")
	bob, _ := s.admitObserver("actor-2", "Bob")

	// Alice saw both her own admission and Bob's
	counts := alice.received(protocol.TypeOnlineCountUpdate)
	s.Require().Len(counts, 2)

	var last protocol.OnlineCount
	s.Require().NoError(json.Unmarshal(counts[1].Data, &last))
	s.Equal(2, last.Online)

	s.Len(bob.received(protocol.TypeOnlineCountUpdate), 1)
}

func (s *RegistrySuite) TestPresenceListGoesToAdminsOnly() {
	alice, _ := s.admitObserver("actor-1", "Alice")
	admin, _ := s.admitAdmin("root")
	s.admitObserver("actor-2", "Bob")

	s.Empty(alice.received(protocol.TypeUsersInfoUpdate))

	lists := admin.received(protocol.TypeUsersInfoUpdate)
	s.Require().NotEmpty(lists)

	var users []protocol.UserInfo
	s.Require().NoError(json.Unmarshal(lists[len(lists)-1].Data, &users))
	s.Len(users, 2)
}

func (s *RegistrySuite) TestOnlineCountExcludesAdmins() {
	s.admitObserver("actor-1", "Alice")
	s.admitAdmin("root")

	s.Equal(1, s.registry.OnlineCount())
}

func (s *RegistrySuite) TestRemoveIsIdempotent() {
	_, slot := s.admitObserver("actor-1", "Alice")

	s.registry.Remove(slot)
	s.registry.Remove(slot)
	s.registry.Remove(999)

	s.Equal(0, s.registry.OnlineCount())
	s.Equal(int64(0), s.metrics.ActiveConnections.Load())
}

func (s *RegistrySuite) TestRemoveClearsSelection() {
	_, slot := s.admitObserver("actor-1", "Alice")
	bob, _ := s.admitObserver("actor-2", "Bob")

	s.registry.UpdateSelection("Alice", &model.Position{X: 3, Y: 4})
	s.Require().Len(s.registry.Selections(), 1)
	bob.clear()

	s.registry.Remove(slot)
	s.Empty(s.registry.Selections())

	// Bob heard the selection being cleared
	updates := bob.received(protocol.TypeSelectionUpdate)
	s.Require().Len(updates, 1)
	var update protocol.SelectionBroadcast
	s.Require().NoError(json.Unmarshal(updates[0].Data, &update))
	s.Equal("Alice", update.Nickname)
	s.Nil(update.Position)
}

func (s *RegistrySuite) TestBroadcastAudiences() {
	alice, _ := s.admitObserver("actor-1", "Alice")
	admin, _ := s.admitAdmin("root")
	alice.clear()
	admin.clear()

	s.registry.Broadcast([]byte(`{"type":"pixel_update"}`), AudienceObservers)
	s.Len(alice.received(protocol.TypePixelUpdate), 1)
	s.Empty(admin.received(protocol.TypePixelUpdate))

	s.registry.Broadcast([]byte(`{"type":"users_info_update"}`), AudienceAdmins)
	s.Empty(alice.received(protocol.TypeUsersInfoUpdate))
	s.Len(admin.received(protocol.TypeUsersInfoUpdate), 1)

	s.registry.Broadcast([]byte(`{"type":"cooldown_update"}`), AudienceAll)
	s.Len(alice.received(protocol.TypeCooldownUpdate), 1)
	s.Len(admin.received(protocol.TypeCooldownUpdate), 1)
}

func (s *RegistrySuite) TestBroadcastDropsDeadPeers() {
	dead, _ := s.admitObserver("actor-1", "Alice")
	live, _ := s.admitObserver("actor-2", "Bob")
	dead.failSend = true

	s.registry.Broadcast([]byte(`{"type":"pixel_update"}`), AudienceAll)

	s.Equal(1, s.registry.OnlineCount())
	s.NotEmpty(live.received(protocol.TypePixelUpdate))
}

func (s *RegistrySuite) TestUpdateSelectionAnnounces() {
	alice, _ := s.admitObserver("actor-1", "Alice")
	alice.clear()

	pos := &model.Position{X: 5, Y: 6}
	s.registry.UpdateSelection("Alice", pos)

	updates := alice.received(protocol.TypeSelectionUpdate)
	s.Require().Len(updates, 1)
	var update protocol.SelectionBroadcast
	s.Require().NoError(json.Unmarshal(updates[0].Data, &update))
	s.Equal("Alice", update.Nickname)
	s.Require().NotNil(update.Position)
	s.Equal(5, update.Position.X)

	selections := s.registry.Selections()
	s.Require().Len(selections, 1)
	s.Equal(model.Position{X: 5, Y: 6}, selections[0].Position)

	// A nil position clears the entry
	s.registry.UpdateSelection("Alice", nil)
	s.Empty(s.registry.Selections())
}

func (s *RegistrySuite) TestKickActor() {
	first, _ := s.admitObserver("actor-1", "Alice")
	second := &fakePeer{}
	s.registry.Admit(second, session.RoleObserver, session.Identity{ActorID: "actor-1", Name: "Alice2"})
	other, _ := s.admitObserver("actor-2", "Bob")

	kicked := s.registry.KickActor("actor-1", protocol.ClosePolicyViolation, "banned")
	s.Equal(2, kicked)

	s.True(first.isClosed())
	s.Equal(protocol.ClosePolicyViolation, first.closeCode)
	s.True(second.isClosed())
	s.False(other.isClosed())
	s.Equal(1, s.registry.OnlineCount())
}

func (s *RegistrySuite) TestShutdownAll() {
	alice, _ := s.admitObserver("actor-1", "Alice")
	admin, _ := s.admitAdmin("root")
	s.registry.UpdateSelection("Alice", &model.Position{X: 1, Y: 1})

	s.registry.ShutdownAll()

	s.True(alice.isClosed())
	s.Equal(protocol.CloseGoingAway, alice.closeCode)
	s.True(admin.isClosed())
	s.Equal(0, s.registry.OnlineCount())
	s.Empty(s.registry.Selections())
	s.Equal(int64(0), s.metrics.ActiveConnections.Load())
}

func (s *RegistrySuite) TestPixelUpdatedBroadcasts() {
	alice, _ := s.admitObserver("actor-1", "Alice")
	alice.clear()

	s.registry.PixelUpdated(model.Cell{X: 2, Y: 3, Color: "#FF0000", Owner: "actor-2"}, "Bob")

	updates := alice.received(protocol.TypePixelUpdate)
	s.Require().Len(updates, 1)
	var update protocol.PixelBroadcast
	s.Require().NoError(json.Unmarshal(updates[0].Data, &update))
	s.Equal(2, update.X)
	s.Equal(3, update.Y)
	s.Equal("#FF0000", update.Color)
	s.Equal("Bob", update.Nickname)
}
