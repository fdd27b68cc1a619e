package domain

// Error codes carried on the wire. Machine-readable; clients branch on these.
const (
	CodeValidation    = "VALIDATION"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeRoomFull      = "ROOM_FULL"
	CodeNameExists    = "NAME_EXISTS"
	CodeLimitReached  = "LIMIT_REACHED"
	CodeAlreadyInRoom = "ALREADY_IN_ROOM"
	CodeRateLimited   = "RATE_LIMITED"
	CodeCircuitOpen   = "CIRCUIT_OPEN"
	CodeServerError   = "SERVER_ERROR"
)

// Error is a coded domain error. Expected domain errors bypass the circuit
// breaker's failure counter; only genuine pipeline failures count toward it.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// NewError creates a coded domain error.
func NewError(code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Retryable reports whether the client may retry after a delay.
func (e *Error) Retryable() bool {
	return e.Code == CodeRateLimited || e.Code == CodeCircuitOpen
}
