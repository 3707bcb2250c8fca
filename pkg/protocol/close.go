package protocol

// Liveness probe frames. The server pings with a single zero byte and
// expects a single one byte back on the same channel.
var (
	PingFrame = []byte{0}
	PongFrame = []byte{1}
)

// NormalClosure is the close code used for semantically labeled terminations.
// The close reason string carries the actual end cause.
const NormalClosure = 1000

// CloseReason is the semantic cause of a session ending.
type CloseReason string

const (
	ReasonKick            CloseReason = "kick"
	ReasonBan             CloseReason = "ban"
	ReasonCloseAdmin      CloseReason = "close-admin"
	ReasonCloseUser       CloseReason = "close-user"
	ReasonClose           CloseReason = "close"
	ReasonLeave           CloseReason = "leave"
	ReasonTokenMissing    CloseReason = "token-missing"
	ReasonTokenInvalid    CloseReason = "token-invalid"
	ReasonRoomNotExists   CloseReason = "room-not-exists"
	ReasonUserNotExists   CloseReason = "user-not-exists"
	ReasonMessageTooLarge CloseReason = "message-too-large"
	ReasonInvalidSession  CloseReason = "invalid-session"

	// ReasonError is the fallback for abnormal close codes and reasons
	// outside the known vocabulary.
	ReasonError CloseReason = "error"
)

var knownReasons = map[CloseReason]bool{
	ReasonKick:            true,
	ReasonBan:             true,
	ReasonCloseAdmin:      true,
	ReasonCloseUser:       true,
	ReasonClose:           true,
	ReasonLeave:           true,
	ReasonTokenMissing:    true,
	ReasonTokenInvalid:    true,
	ReasonRoomNotExists:   true,
	ReasonUserNotExists:   true,
	ReasonMessageTooLarge: true,
	ReasonInvalidSession:  true,
}

// ClassifyClose maps a close code and reason string to a semantic cause.
// Only code 1000 carries a labeled cause; everything else is an
// unrecoverable connection error.
func ClassifyClose(code int, reason string) CloseReason {
	if code != NormalClosure {
		return ReasonError
	}
	r := CloseReason(reason)
	if knownReasons[r] {
		return r
	}
	return ReasonError
}

var reasonMessages = map[CloseReason]string{
	ReasonKick:            "You have been kicked from the chat room.",
	ReasonBan:             "You have been banned from the chat room.",
	ReasonCloseAdmin:      "",
	ReasonCloseUser:       "The admin has closed the chat room.",
	ReasonClose:           "The chat room closed because the time ran out.",
	ReasonLeave:           "",
	ReasonTokenMissing:    "Authentication failed: token was missing.",
	ReasonTokenInvalid:    "Authentication failed: token was invalid or expired.",
	ReasonRoomNotExists:   "Unexpected error: this chat room does not exist.",
	ReasonUserNotExists:   "Unexpected error: you were not found in this room.",
	ReasonMessageTooLarge: "Unexpected error: the size of the message you sent was too large.",
	ReasonInvalidSession:  "Unexpected error: encryption key is missing, please try again.",
	ReasonError:           "An unexpected server error occurred.",
}

// Message returns the user-facing text for the close reason.
func (r CloseReason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return "Unknown error occurred."
}
