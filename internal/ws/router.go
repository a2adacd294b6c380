package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/openplace/pixelfield/internal/config"
	"github.com/openplace/pixelfield/internal/metrics"
	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/protocol"
	"github.com/openplace/pixelfield/internal/services/canvas"
	"github.com/openplace/pixelfield/internal/services/session"
	"github.com/openplace/pixelfield/internal/storage"
)

// ErrCloseRequested is returned through Dispatch when the client asked for
// a voluntary disconnect and the connection's read loop should end
var ErrCloseRequested = errors.New("client requested disconnect")

// client is the per-connection state handed to handlers
type client struct {
	slot     int
	peer     Peer
	role     session.Role
	identity session.Identity
}

type handlerFunc func(ctx context.Context, c *client, data json.RawMessage) error

type route struct {
	adminOnly bool
	handle    handlerFunc
}

// Router dispatches decoded in-session messages to their handlers. One
// malformed message is answered with a non-fatal error reply and never
// tears down the connection.
type Router struct {
	registry *Registry
	canvas   *canvas.Service
	storage  storage.Storage
	settings *config.Settings
	logger   *slog.Logger
	metrics  *metrics.Metrics

	routes map[string]route
}

// NewRouter creates a Router with the full message table wired
func NewRouter(
	registry *Registry,
	canvasService *canvas.Service,
	store storage.Storage,
	settings *config.Settings,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Router {
	r := &Router{
		registry: registry,
		canvas:   canvasService,
		storage:  store,
		settings: settings,
		logger:   logger.With(slog.String("component", "router")),
		metrics:  m,
	}
	r.routes = map[string]route{
		protocol.TypeUpdatePixel:         {handle: r.handleUpdatePixel},
		protocol.TypeUpdatePixelAdmin:    {adminOnly: true, handle: r.handleUpdatePixelAdmin},
		protocol.TypeUpdateSelection:     {handle: r.handleUpdateSelection},
		protocol.TypeGetFieldState:       {handle: r.handleGetFieldState},
		protocol.TypeGetOnlineCount:      {handle: r.handleGetOnlineCount},
		protocol.TypeGetCooldown:         {handle: r.handleGetCooldown},
		protocol.TypePixelInfoAdmin:      {adminOnly: true, handle: r.handlePixelInfo},
		protocol.TypeToggleBanUserAdmin:  {adminOnly: true, handle: r.handleToggleBan},
		protocol.TypeUpdateCooldownAdmin: {adminOnly: true, handle: r.handleUpdateCooldown},
		protocol.TypeResetGameAdmin:      {adminOnly: true, handle: r.handleResetGame},
		protocol.TypeDisconnect:          {handle: r.handleDisconnect},
	}
	return r
}

// Dispatch routes one raw inbound message. The only non-nil return is
// ErrCloseRequested; every other failure is reported to the sender and
// recovered locally.
func (r *Router) Dispatch(ctx context.Context, c *client, raw []byte) error {
	r.metrics.MessagesIn.Add(1)

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.reply(c, protocol.Error("Malformed message"))
		return nil
	}

	rt, ok := r.routes[env.Type]
	if !ok {
		r.reply(c, protocol.Error("Unsupported message type"))
		return nil
	}
	if rt.adminOnly && c.role != session.RoleAdmin {
		r.reply(c, protocol.Error("Forbidden"))
		return nil
	}

	err := rt.handle(ctx, c, env.Data)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCloseRequested) {
		return err
	}

	// Store or marshal failure inside a handler: recover locally, tell only
	// the requester, leave every other connection alone.
	r.logger.Error("handler failed",
		slog.String("type", env.Type),
		slog.String("nickname", c.identity.Name),
		slog.String("error", err.Error()))
	r.reply(c, protocol.Error("Internal error"))
	return nil
}

// reply sends a message to the requesting connection only
func (r *Router) reply(c *client, message []byte) {
	if err := c.peer.Send(message); err != nil {
		r.registry.Remove(c.slot)
		return
	}
	r.metrics.MessagesOut.Add(1)
}

func (r *Router) handleUpdatePixel(ctx context.Context, c *client, data json.RawMessage) error {
	var req protocol.PixelWriteData
	if err := json.Unmarshal(data, &req); err != nil || req.Color == "" {
		r.reply(c, protocol.Error("Invalid pixel payload"))
		return nil
	}
	return r.applyWrite(ctx, c, req.X, req.Y, req.Color, false)
}

func (r *Router) handleUpdatePixelAdmin(ctx context.Context, c *client, data json.RawMessage) error {
	var req protocol.PixelWriteData
	if err := json.Unmarshal(data, &req); err != nil {
		r.reply(c, protocol.Error("Invalid pixel payload"))
		return nil
	}
	color := req.Color
	if color == "" {
		color = model.EraseColor
	}
	return r.applyWrite(ctx, c, req.X, req.Y, color, true)
}

func (r *Router) applyWrite(ctx context.Context, c *client, x, y int, color string, bypass bool) error {
	err := r.canvas.ApplyWrite(ctx, x, y, color, c.identity.ActorID, c.identity.Name, bypass)
	switch {
	case errors.Is(err, model.ErrOutOfBounds):
		r.metrics.WritesRejected.Add(1)
		r.reply(c, protocol.Error("Invalid pixel coordinates"))
		return nil
	case errors.Is(err, model.ErrCooldown):
		r.metrics.WritesRejected.Add(1)
		r.reply(c, protocol.Error("You can only color a pixel at a set time."))
		return nil
	case err != nil:
		return err
	}
	r.metrics.WritesAccepted.Add(1)
	return nil
}

func (r *Router) handleUpdateSelection(ctx context.Context, c *client, data json.RawMessage) error {
	var req protocol.SelectionData
	if err := json.Unmarshal(data, &req); err != nil {
		r.reply(c, protocol.Error("Invalid selection payload"))
		return nil
	}
	if req.Position != nil && !r.settings.Contains(req.Position.X, req.Position.Y) {
		r.reply(c, protocol.Error("Invalid selection coordinates"))
		return nil
	}
	r.registry.UpdateSelection(c.identity.Name, req.Position)
	return nil
}

func (r *Router) handleGetFieldState(ctx context.Context, c *client, _ json.RawMessage) error {
	message, err := r.fieldStateMessage(ctx)
	if err != nil {
		return err
	}
	r.reply(c, message)
	return nil
}

// fieldStateMessage composes the full resync snapshot: canvas cells plus
// the registry's live selection overlay
func (r *Router) fieldStateMessage(ctx context.Context) ([]byte, error) {
	snapshot, err := r.canvas.FieldState(ctx)
	if err != nil {
		return nil, err
	}

	pixels := make([]protocol.FieldPixel, 0, len(snapshot.Cells))
	for _, cell := range snapshot.Cells {
		nickname := ""
		if owner, err := r.storage.GetActor(ctx, cell.Owner); err == nil {
			nickname = owner.DisplayName
		}
		pixels = append(pixels, protocol.FieldPixel{
			Position: model.Position{X: cell.X, Y: cell.Y},
			Color:    cell.Color,
			Nickname: nickname,
		})
	}

	live := r.registry.Selections()
	selections := make([]protocol.FieldSelection, 0, len(live))
	for _, sel := range live {
		selections = append(selections, protocol.FieldSelection{
			Nickname: sel.Nickname,
			Position: sel.Position,
		})
	}

	return json.Marshal(protocol.FieldStateMessage{
		Type:     protocol.TypeFieldState,
		Size:     protocol.FieldSize{snapshot.Width, snapshot.Height},
		Cooldown: int(snapshot.Cooldown / time.Second),
		Data: protocol.FieldStateData{
			Pixels:     pixels,
			Selections: selections,
		},
	})
}

func (r *Router) handleGetOnlineCount(_ context.Context, c *client, _ json.RawMessage) error {
	r.reply(c, protocol.MustMessage(protocol.TypeOnlineCountUpdate, protocol.OnlineCount{
		Online: r.registry.OnlineCount(),
	}))
	return nil
}

func (r *Router) handleGetCooldown(_ context.Context, c *client, _ json.RawMessage) error {
	r.reply(c, protocol.MustMessage(protocol.TypeCooldownUpdate, int(r.settings.Cooldown()/time.Second)))
	return nil
}

func (r *Router) handlePixelInfo(ctx context.Context, c *client, data json.RawMessage) error {
	var req protocol.PixelInfoQuery
	if err := json.Unmarshal(data, &req); err != nil {
		r.reply(c, protocol.Error("Invalid pixel info payload"))
		return nil
	}

	cell, owner, err := r.canvas.PixelInfo(ctx, req.X, req.Y)
	switch {
	case errors.Is(err, model.ErrOutOfBounds):
		r.reply(c, protocol.Error("Invalid pixel coordinates"))
		return nil
	case errors.Is(err, model.ErrPixelNotFound):
		r.reply(c, protocol.Error("There is no one who past pixel there"))
		return nil
	case err != nil:
		return err
	}

	info := protocol.PixelInfo{X: cell.X, Y: cell.Y, Color: cell.Color}
	if owner != nil {
		id := string(owner.ID)
		info.UserID = &id
		info.Nickname = &owner.DisplayName
	}
	r.reply(c, protocol.MustMessage(protocol.TypePixelInfoUpdate, info))
	return nil
}

func (r *Router) handleToggleBan(ctx context.Context, c *client, data json.RawMessage) error {
	var req protocol.BanUserData
	if err := json.Unmarshal(data, &req); err != nil || req.UserID == "" {
		r.reply(c, protocol.Error("Invalid ban payload"))
		return nil
	}

	banned, err := r.storage.ToggleActorBan(ctx, model.ActorID(req.UserID))
	if errors.Is(err, model.ErrActorNotFound) {
		r.reply(c, protocol.Error("User not found"))
		return nil
	}
	if err != nil {
		return err
	}

	if banned {
		kicked := r.registry.KickActor(model.ActorID(req.UserID), protocol.ClosePolicyViolation, "banned")
		r.logger.Info("actor banned",
			slog.String("actor_id", req.UserID),
			slog.Int("connections_kicked", kicked))
	}
	r.reply(c, protocol.Success("User ban toggled"))
	return nil
}

func (r *Router) handleUpdateCooldown(_ context.Context, c *client, data json.RawMessage) error {
	var seconds int
	if err := json.Unmarshal(data, &seconds); err != nil || seconds < 0 {
		r.reply(c, protocol.Error("Invalid cooldown payload"))
		return nil
	}

	r.settings.SetCooldown(time.Duration(seconds) * time.Second)
	r.registry.Broadcast(protocol.MustMessage(protocol.TypeCooldownUpdate, seconds), AudienceAll)
	return nil
}

func (r *Router) handleResetGame(ctx context.Context, c *client, data json.RawMessage) error {
	var size protocol.FieldSize
	if err := json.Unmarshal(data, &size); err != nil || size[0] <= 0 || size[1] <= 0 {
		r.reply(c, protocol.Error("Invalid field size"))
		return nil
	}

	if err := r.canvas.Reset(ctx, size[0], size[1]); err != nil {
		return err
	}
	r.registry.ClearSelections()
	r.reply(c, protocol.Success("Game reset"))

	// Everyone, including the requesting admin, re-authenticates against
	// the new field.
	r.registry.ShutdownAll()
	return ErrCloseRequested
}

func (r *Router) handleDisconnect(_ context.Context, c *client, _ json.RawMessage) error {
	// Removal goes through the registry so the population count and the
	// selection overlay stay consistent; only then is the transport closed.
	r.registry.Remove(c.slot)
	c.peer.Close(protocol.CloseNormal, "bye")
	return ErrCloseRequested
}
