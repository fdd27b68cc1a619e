package audit

import (
	"github.com/weiawesome/talkwire/pkg/log"
)

// Audit actions.
const (
	ActionCreateRoom = "room.create"
	ActionJoinRoom   = "room.join"
	ActionLeaveRoom  = "room.leave"
	ActionVoteKick   = "room.vote_kick"
	ActionAFKKick    = "room.afk_kick"
	ActionGuardBlock = "guard.block"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry.
func Log(action, connID, roomID, msg string) {
	log.L().Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldConnID, connID).
		Str(log.FieldRoomID, roomID).
		Msg(msg)
}

// LogWithDetail emits an audit log with an extra detail field.
func LogWithDetail(action, connID, roomID, detail, msg string) {
	log.L().Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldConnID, connID).
		Str(log.FieldRoomID, roomID).
		Str(FieldDetail, detail).
		Msg(msg)
}
