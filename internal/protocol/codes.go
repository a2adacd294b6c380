package protocol

// Websocket close codes. The standard range covers in-session failures;
// the 4xxx application range distinguishes handshake outcomes so a client
// can tell "retry with a new name" from "banned" from "get a fresh token".
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011

	CloseUnauthorized  = 4001 // bad or expired admin token
	CloseBanned        = 4003 // actor is banned
	CloseActorNotFound = 4004 // login with an unknown actor id
	CloseNameConflict  = 4009 // display name already taken
)
