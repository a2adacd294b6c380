package protocol

import (
	"encoding/json"

	"github.com/openplace/pixelfield/internal/model"
)

// Inbound message types
const (
	TypeLogin               = "login"
	TypeLoginAdmin          = "login_admin"
	TypeUpdatePixel         = "update_pixel"
	TypeUpdatePixelAdmin    = "update_pixel_admin"
	TypeUpdateSelection     = "update_selection"
	TypeGetFieldState       = "get_field_state"
	TypeGetOnlineCount      = "get_online_count"
	TypeGetCooldown         = "get_cooldown"
	TypePixelInfoAdmin      = "pixel_info_admin"
	TypeToggleBanUserAdmin  = "toggle_ban_user_admin"
	TypeUpdateCooldownAdmin = "update_cooldown_admin"
	TypeResetGameAdmin      = "reset_game_admin"
	TypeDisconnect          = "disconnect"
)

// Outbound message types
const (
	TypeUserID            = "user_id"
	TypeFieldState        = "field_state"
	TypePixelUpdate       = "pixel_update"
	TypeSelectionUpdate   = "selection_update"
	TypeOnlineCountUpdate = "online_count_update"
	TypeUsersInfoUpdate   = "users_info_update"
	TypeCooldownUpdate    = "cooldown_update"
	TypePixelInfoUpdate   = "pixel_info_update"
	TypeError             = "error"
	TypeSuccess           = "success"
)

// Envelope is the outer shape of every wire message
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads

// LoginData is the payload of a "login" message. UserID is empty on an
// actor's very first login.
type LoginData struct {
	Nickname string `json:"nickname"`
	UserID   string `json:"user_id,omitempty"`
}

// PixelWriteData is the payload of "update_pixel" and "update_pixel_admin".
// An empty color on the admin variant paints the erase color.
type PixelWriteData struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color,omitempty"`
}

// SelectionData is the payload of "update_selection". A nil position clears
// the sender's selection.
type SelectionData struct {
	Position *model.Position `json:"position"`
}

// PixelInfoQuery is the payload of "pixel_info_admin"
type PixelInfoQuery struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BanUserData is the payload of "toggle_ban_user_admin"
type BanUserData struct {
	UserID string `json:"user_id"`
}

// FieldSize is a (width, height) pair wired as a two-element array,
// matching the client's reset_game_admin payload and the field_state size
type FieldSize [2]int

// Outbound payloads

// PixelBroadcast announces an accepted cell write
type PixelBroadcast struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Color    string `json:"color"`
	Nickname string `json:"nickname"`
}

// SelectionBroadcast announces a selection change. Position is null when
// the selection was cleared.
type SelectionBroadcast struct {
	Nickname string          `json:"nickname"`
	Position *model.Position `json:"position"`
}

// OnlineCount carries the observer population
type OnlineCount struct {
	Online int `json:"online"`
}

// UserInfo is one entry of a "users_info_update" list
type UserInfo struct {
	Nickname string `json:"nickname"`
	ID       string `json:"id"`
}

// FieldPixel is one cell of a field_state snapshot
type FieldPixel struct {
	Position model.Position `json:"position"`
	Color    string         `json:"color"`
	Nickname string         `json:"nickname"`
}

// FieldSelection is one live selection of a field_state snapshot
type FieldSelection struct {
	Nickname string         `json:"nickname"`
	Position model.Position `json:"position"`
}

// FieldStateData is the data payload of a field_state message
type FieldStateData struct {
	Pixels     []FieldPixel     `json:"pixels"`
	Selections []FieldSelection `json:"selections"`
}

// FieldStateMessage is the full field_state message. Unlike other outbound
// types it carries size and cooldown beside the data payload.
type FieldStateMessage struct {
	Type     string         `json:"type"`
	Size     FieldSize      `json:"size"`
	Cooldown int            `json:"cooldown"`
	Data     FieldStateData `json:"data"`
}

// PixelInfo answers a pixel_info_admin query
type PixelInfo struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Color    string  `json:"color"`
	UserID   *string `json:"user_id"`
	Nickname *string `json:"nickname"`
}

// ErrorMessage is a non-fatal error reply
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SuccessMessage acknowledges an administrative operation
type SuccessMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Message marshals a {type, data} message
func Message(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// MustMessage is Message for payload types that cannot fail to marshal
func MustMessage(msgType string, data any) []byte {
	msg, err := Message(msgType, data)
	if err != nil {
		panic(err)
	}
	return msg
}

// Error marshals an error reply
func Error(message string) []byte {
	msg, _ := json.Marshal(ErrorMessage{Type: TypeError, Message: message})
	return msg
}

// Success marshals a success reply
func Success(data string) []byte {
	msg, _ := json.Marshal(SuccessMessage{Type: TypeSuccess, Data: data})
	return msg
}
