package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/openplace/pixelfield/internal/dependencies/clock"
	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/protocol"
	"github.com/openplace/pixelfield/internal/storage"
)

// Role classifies an authenticated connection
type Role int

const (
	RoleObserver Role = iota
	RoleAdmin
)

// Identity is the resolved identity of an authenticated connection
type Identity struct {
	// ActorID is the actor's id, or the admin record id for admins
	ActorID model.ActorID
	// Name is the display name (the token subject for admins)
	Name string
	// NewActor is true when this login minted a fresh actor id that must
	// be sent back to the client before normal traffic begins
	NewActor bool
}

// HandshakeError is a terminal handshake failure. Code is the websocket
// close code the connection must be closed with.
type HandshakeError struct {
	Code    int
	Message string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed (%d): %s", e.Code, e.Message)
}

// Service drives the pre-admission login handshake: it consumes a
// connection's first message and resolves it to an identity and role, or a
// terminal failure. It never touches the connection registry.
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	secret  []byte
	logger  *slog.Logger
}

// New creates a new session Service
func New(storage storage.Storage, clock clock.Clock, tokenSecret []byte, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		secret:  tokenSecret,
		logger:  logger.With(slog.String("component", "session")),
	}
}

// Authenticate resolves a connection's first inbound message. On failure
// the returned error is a *HandshakeError carrying the close code.
func (s *Service) Authenticate(ctx context.Context, firstMessage []byte) (Identity, Role, error) {
	var env protocol.Envelope
	if err := json.Unmarshal(firstMessage, &env); err != nil {
		return Identity{}, 0, &HandshakeError{Code: protocol.CloseProtocolError, Message: "malformed message"}
	}

	switch env.Type {
	case protocol.TypeLogin:
		return s.loginActor(ctx, env.Data)
	case protocol.TypeLoginAdmin:
		return s.loginAdmin(ctx, env.Data)
	default:
		return Identity{}, 0, &HandshakeError{Code: protocol.CloseProtocolError, Message: "expected login or login_admin"}
	}
}

func (s *Service) loginActor(ctx context.Context, data json.RawMessage) (Identity, Role, error) {
	var req protocol.LoginData
	if err := json.Unmarshal(data, &req); err != nil {
		return Identity{}, 0, &HandshakeError{Code: protocol.CloseProtocolError, Message: "malformed login payload"}
	}
	if strings.TrimSpace(req.Nickname) == "" {
		return Identity{}, 0, &HandshakeError{Code: protocol.CloseProtocolError, Message: "nickname is required"}
	}

	var (
		actor    *model.Actor
		newActor bool
	)

	if req.UserID != "" {
		found, err := s.storage.GetActor(ctx, model.ActorID(req.UserID))
		if err != nil {
			if errors.Is(err, model.ErrActorNotFound) {
				return Identity{}, 0, &HandshakeError{Code: protocol.CloseActorNotFound, Message: "user not found"}
			}
			return Identity{}, 0, err
		}
		if found.DisplayName != req.Nickname {
			if err := s.storage.RenameActor(ctx, found.ID, req.Nickname); err != nil {
				if errors.Is(err, model.ErrNameTaken) {
					return Identity{}, 0, &HandshakeError{Code: protocol.CloseNameConflict, Message: "nickname already exists"}
				}
				return Identity{}, 0, err
			}
			found.DisplayName = req.Nickname
		}
		actor = found
	} else {
		created := &model.Actor{
			ID:          model.ActorID(uuid.NewString()),
			DisplayName: req.Nickname,
			CreatedAt:   s.clock.Now(),
		}
		if err := s.storage.CreateActor(ctx, created); err != nil {
			if errors.Is(err, model.ErrNameTaken) {
				return Identity{}, 0, &HandshakeError{Code: protocol.CloseNameConflict, Message: "nickname already exists"}
			}
			return Identity{}, 0, err
		}
		actor = created
		newActor = true
	}

	if actor.Banned {
		return Identity{}, 0, &HandshakeError{Code: protocol.CloseBanned, Message: "user is banned"}
	}

	s.logger.Info("actor authenticated",
		slog.String("actor_id", string(actor.ID)),
		slog.String("nickname", actor.DisplayName),
		slog.Bool("new_actor", newActor))

	return Identity{ActorID: actor.ID, Name: actor.DisplayName, NewActor: newActor}, RoleObserver, nil
}

func (s *Service) loginAdmin(ctx context.Context, data json.RawMessage) (Identity, Role, error) {
	var token string
	if err := json.Unmarshal(data, &token); err != nil || token == "" {
		return Identity{}, 0, &HandshakeError{Code: protocol.CloseProtocolError, Message: "malformed admin login payload"}
	}

	subject, err := s.verifyAdminToken(token)
	if err != nil {
		return Identity{}, 0, &HandshakeError{Code: protocol.CloseUnauthorized, Message: "invalid or expired token"}
	}

	admin, err := s.storage.GetAdminByName(ctx, subject)
	if err != nil {
		if errors.Is(err, model.ErrAdminNotFound) {
			return Identity{}, 0, &HandshakeError{Code: protocol.CloseUnauthorized, Message: "unknown administrator"}
		}
		return Identity{}, 0, err
	}

	s.logger.Info("admin authenticated", slog.String("admin", admin.DisplayName))

	return Identity{ActorID: model.ActorID(admin.ID), Name: admin.DisplayName}, RoleAdmin, nil
}

// verifyAdminToken decodes an HS256 token and checks its subject and expiry
// against the session clock
func (s *Service) verifyAdminToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims shape")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject")
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return "", errors.New("token has no expiry")
	}
	return subject, nil
}

// IssueAdminToken mints an HS256 admin session token. Token issuance
// belongs to the administrative login flow outside the live session; this
// helper exists for that flow and for tests.
func IssueAdminToken(secret []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
