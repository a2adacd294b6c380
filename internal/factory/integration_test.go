package factory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/protocol"
	"github.com/openplace/pixelfield/internal/services/session"
)

type IntegrationSuite struct {
	suite.Suite
	app    *TestApp
	server *httptest.Server
	ctx    context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.server = httptest.NewServer(http.HandlerFunc(s.app.WSServer.HandleWS))
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.app.Registry.ShutdownAll()
	s.server.Close()
}

func (s *IntegrationSuite) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *IntegrationSuite) dial() *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(), nil)
	s.Require().NoError(err)
	return conn
}

func (s *IntegrationSuite) send(conn *websocket.Conn, msgType string, data any) {
	msg, err := protocol.Message(msgType, data)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, msg))
}

// awaitType reads messages until one of the given type appears, skipping
// interleaved broadcasts
func (s *IntegrationSuite) awaitType(conn *websocket.Conn, msgType string) protocol.Envelope {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.Require().NoError(conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		s.Require().NoError(err)

		var env protocol.Envelope
		s.Require().NoError(json.Unmarshal(raw, &env))
		if env.Type == msgType {
			return env
		}
	}
	s.Require().Failf("timed out", "no %s message within 2s", msgType)
	return protocol.Envelope{}
}

// awaitClose drains the connection until the server closes it and returns
// the close code
func (s *IntegrationSuite) awaitClose(conn *websocket.Conn) int {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		s.Require().True(ok, "expected a close frame, got: %v", err)
		return closeErr.Code
	}
}

// login performs the handshake and returns the connection and actor id
func (s *IntegrationSuite) login(nickname, userID string) (*websocket.Conn, string) {
	conn := s.dial()
	s.send(conn, protocol.TypeLogin, protocol.LoginData{Nickname: nickname, UserID: userID})

	if userID == "" {
		env := s.awaitType(conn, protocol.TypeUserID)
		s.Require().NoError(json.Unmarshal(env.Data, &userID))
		s.Require().NotEmpty(userID)
	}

	// The initial snapshot closes the handshake phase
	s.awaitType(conn, protocol.TypeFieldState)
	return conn, userID
}

func (s *IntegrationSuite) loginAdmin(name string) *websocket.Conn {
	err := s.app.Storage.SaveAdmin(s.ctx, &model.Admin{
		ID:          "admin-1",
		DisplayName: name,
		CreatedAt:   s.app.MockClock.Now(),
	})
	s.Require().NoError(err)

	token, err := session.IssueAdminToken(TestSecret, name, time.Hour, s.app.MockClock.Now())
	s.Require().NoError(err)

	conn := s.dial()
	s.send(conn, protocol.TypeLoginAdmin, token)
	s.awaitType(conn, protocol.TypeFieldState)
	return conn
}

func (s *IntegrationSuite) TestPaintFlow() {
	alice, _ := s.login("Alice", "")
	defer alice.Close()
	bob, _ := s.login("Bob", "")
	defer bob.Close()

	// Alice paints; Bob sees it
	s.send(alice, protocol.TypeUpdatePixel, protocol.PixelWriteData{X: 3, Y: 4, Color: "#FF0000"})

	env := s.awaitType(bob, protocol.TypePixelUpdate)
	var update protocol.PixelBroadcast
	s.Require().NoError(json.Unmarshal(env.Data, &update))
	s.Equal(3, update.X)
	s.Equal(4, update.Y)
	s.Equal("#FF0000", update.Color)
	s.Equal("Alice", update.Nickname)

	// A second paint inside the cooldown window is refused
	s.send(alice, protocol.TypeUpdatePixel, protocol.PixelWriteData{X: 5, Y: 5, Color: "#00FF00"})
	s.awaitType(alice, protocol.TypeError)

	// After the window passes it goes through
	s.app.MockClock.Advance(5 * time.Minute)
	s.send(alice, protocol.TypeUpdatePixel, protocol.PixelWriteData{X: 5, Y: 5, Color: "#00FF00"})
	s.awaitType(alice, protocol.TypePixelUpdate)
}

func (s *IntegrationSuite) TestReturningActorKeepsIdentity() {
	alice, id := s.login("Alice", "")
	_ = alice.Close()

	again, sameID := s.login("Alice", id)
	defer again.Close()
	s.Equal(id, sameID)
}

func (s *IntegrationSuite) TestLoginUnknownActorCloses() {
	conn := s.dial()
	s.send(conn, protocol.TypeLogin, protocol.LoginData{Nickname: "Alice", UserID: "ghost"})

	s.Equal(protocol.CloseActorNotFound, s.awaitClose(conn))
}

func (s *IntegrationSuite) TestLoginNameConflictCloses() {
	alice, _ := s.login("Alice", "")
	defer alice.Close()

	conn := s.dial()
	s.send(conn, protocol.TypeLogin, protocol.LoginData{Nickname: "Alice"})

	s.Equal(protocol.CloseNameConflict, s.awaitClose(conn))
}

func (s *IntegrationSuite) TestSelectionOverlay() {
	alice, _ := s.login("Alice", "")
	defer alice.Close()
	bob, _ := s.login("Bob", "")
	defer bob.Close()

	s.send(alice, protocol.TypeUpdateSelection, protocol.SelectionData{
		Position: &model.Position{X: 7, Y: 8},
	})

	env := s.awaitType(bob, protocol.TypeSelectionUpdate)
	var update protocol.SelectionBroadcast
	s.Require().NoError(json.Unmarshal(env.Data, &update))
	s.Equal("Alice", update.Nickname)
	s.Require().NotNil(update.Position)
	s.Equal(7, update.Position.X)

	// A later full resync carries the overlay
	s.send(bob, protocol.TypeGetFieldState, nil)
	state := s.awaitType(bob, protocol.TypeFieldState)
	var data protocol.FieldStateData
	s.Require().NoError(json.Unmarshal(state.Data, &data))
	s.Require().Len(data.Selections, 1)
	s.Equal("Alice", data.Selections[0].Nickname)
}

func (s *IntegrationSuite) TestAdminBanKicksActor() {
	alice, id := s.login("Alice", "")
	defer alice.Close()

	admin := s.loginAdmin("root")
	defer admin.Close()

	s.send(admin, protocol.TypeToggleBanUserAdmin, protocol.BanUserData{UserID: id})
	s.awaitType(admin, protocol.TypeSuccess)

	s.Equal(protocol.ClosePolicyViolation, s.awaitClose(alice))

	// The banned actor cannot come back
	conn := s.dial()
	s.send(conn, protocol.TypeLogin, protocol.LoginData{Nickname: "Alice", UserID: id})
	s.Equal(protocol.CloseBanned, s.awaitClose(conn))
}

func (s *IntegrationSuite) TestAdminOnlyRefusedForObserver() {
	alice, _ := s.login("Alice", "")
	defer alice.Close()

	s.send(alice, protocol.TypeResetGameAdmin, protocol.FieldSize{8, 8})
	s.awaitType(alice, protocol.TypeError)

	width, height := s.app.Settings.FieldSize()
	s.Equal(16, width)
	s.Equal(16, height)
}

func (s *IntegrationSuite) TestResetGameDisconnectsEveryone() {
	alice, _ := s.login("Alice", "")
	defer alice.Close()

	admin := s.loginAdmin("root")
	defer admin.Close()

	s.send(admin, protocol.TypeResetGameAdmin, protocol.FieldSize{32, 24})

	s.Equal(protocol.CloseGoingAway, s.awaitClose(alice))

	width, height := s.app.Settings.FieldSize()
	s.Equal(32, width)
	s.Equal(24, height)
}
