package domain

// WebSocket message types from client.
const (
	MsgTypeCheckSignin  = "check-signin-status"
	MsgTypeJoinLobby    = "join-lobby"
	MsgTypeCreateRoom   = "create-room"
	MsgTypeJoinRoom     = "join-room"
	MsgTypeVote         = "vote"
	MsgTypeLeaveRoom    = "leave-room"
	MsgTypeChatUpdate   = "chat-update"
	MsgTypeTyping       = "typing"
	MsgTypeGetRooms     = "get-rooms"
	MsgTypeGetRoomState = "get-room-state"
)

// WebSocket message types to client.
const (
	MsgTypeSigninStatus       = "signin-status"
	MsgTypeRoomCreated        = "room-created"
	MsgTypeRoomJoined         = "room-joined"
	MsgTypeRoomUpdate         = "room-update"
	MsgTypeLobbyUpdate        = "lobby-update"
	MsgTypeUserJoined         = "user-joined"
	MsgTypeUserLeft           = "user-left"
	MsgTypeUserTyping         = "user-typing"
	MsgTypeChatUpdateOut      = "chat-update"
	MsgTypeUpdateVotes        = "update-votes"
	MsgTypeKicked             = "kicked"
	MsgTypeRoomFull           = "room-full"
	MsgTypeAccessCodeRequired = "access-code-required"
	MsgTypeAFKWarning         = "afk-warning"
	MsgTypeError              = "error"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinLobbyMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Location string `json:"location"`
}

type CreateRoomMessage struct {
	Type       string     `json:"type"`
	Name       string     `json:"name"`
	RoomType   RoomType   `json:"room_type"`
	Layout     RoomLayout `json:"layout"`
	AccessCode string     `json:"access_code,omitempty"`
}

type JoinRoomMessage struct {
	Type       string `json:"type"`
	RoomID     string `json:"room_id"`
	AccessCode string `json:"access_code,omitempty"`
}

type VoteMessage struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}

type ChatUpdateMessage struct {
	Type string `json:"type"`
	Diff Diff   `json:"diff"`
}

type TypingMessage struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

type GetRoomStateMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// Server -> Client messages

type SigninStatusMessage struct {
	Type     string `json:"type"`
	SignedIn bool   `json:"signed_in"`
	Username string `json:"username,omitempty"`
}

type RoomCreatedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type RoomJoinedMessage struct {
	Type    string            `json:"type"`
	RoomID  string            `json:"room_id"`
	Name    string            `json:"name"`
	Layout  RoomLayout        `json:"layout"`
	Members []Member          `json:"members"`
	Votes   map[string]string `json:"votes"`
	Buffers map[string]string `json:"buffers"`
}

type RoomUpdateMessage struct {
	Type    string            `json:"type"`
	RoomID  string            `json:"room_id"`
	Members []Member          `json:"members"`
	Votes   map[string]string `json:"votes"`
	Buffers map[string]string `json:"buffers,omitempty"`
}

type LobbyUpdateMessage struct {
	Type  string     `json:"type"`
	Rooms []RoomInfo `json:"rooms"`
}

type UserJoinedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Member Member `json:"member"`
}

type UserLeftMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type UserTypingMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type ChatUpdateOutMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Diff   Diff   `json:"diff"`
}

type UpdateVotesMessage struct {
	Type   string            `json:"type"`
	RoomID string            `json:"room_id"`
	Votes  map[string]string `json:"votes"`
}

type KickedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

type RoomFullMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type AccessCodeRequiredMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type AFKWarningMessage struct {
	Type             string `json:"type"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

type ErrorMessage struct {
	Type    string         `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewErrorMessage wraps a coded error for the wire.
func NewErrorMessage(err *Error) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	}
}
