package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffValidate(t *testing.T) {
	tests := []struct {
		name    string
		diff    Diff
		wantErr bool
	}{
		{"full replace", Diff{Op: DiffFullReplace, Text: "hello"}, false},
		{"add", Diff{Op: DiffAdd, Index: 3, Text: "x"}, false},
		{"delete", Diff{Op: DiffDelete, Index: 0, Count: 2}, false},
		{"replace", Diff{Op: DiffReplace, Index: 1, Text: "y"}, false},
		{"unknown op", Diff{Op: "swap"}, true},
		{"negative add index", Diff{Op: DiffAdd, Index: -1}, true},
		{"negative delete index", Diff{Op: DiffDelete, Index: -1}, true},
		{"negative delete count", Diff{Op: DiffDelete, Count: -1}, true},
		{"oversized text", Diff{Op: DiffFullReplace, Text: "abcdef"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.diff.Validate(5)
			if tt.wantErr {
				var derr *Error
				require.ErrorAs(t, err, &derr)
				assert.Equal(t, CodeValidation, derr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestErrorRetryable(t *testing.T) {
	assert.True(t, NewError(CodeRateLimited, "", nil).Retryable())
	assert.True(t, NewError(CodeCircuitOpen, "", nil).Retryable())
	assert.False(t, NewError(CodeForbidden, "", nil).Retryable())
	assert.False(t, NewError(CodeRoomFull, "", nil).Retryable())
}

func TestRoomTypeValid(t *testing.T) {
	assert.True(t, RoomTypePublic.Valid())
	assert.True(t, RoomTypeSemiPrivate.Valid())
	assert.True(t, RoomTypePrivate.Valid())
	assert.False(t, RoomType("secret").Valid())
}

func TestRoomLayoutValid(t *testing.T) {
	assert.True(t, LayoutHorizontal.Valid())
	assert.True(t, LayoutVertical.Valid())
	assert.False(t, RoomLayout("diagonal").Valid())
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("conn-1", "10.0.0.1")
	assert.Equal(t, "conn-1", s.ConnID)
	assert.Equal(t, "10.0.0.1", s.IP)
	assert.Equal(t, "Anonymous", s.Username)
	assert.Equal(t, "On The Web", s.Location)
	assert.False(t, s.JoinedLobby)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(NewError(CodeRoomFull, "room is full", map[string]any{"room_id": "123456"}))
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Equal(t, CodeRoomFull, msg.Code)
	assert.Equal(t, "room is full", msg.Message)
	assert.Equal(t, "123456", msg.Details["room_id"])
}

func TestHasMember(t *testing.T) {
	room := Room{Members: []Member{{ID: "a"}, {ID: "b"}}}
	assert.True(t, room.HasMember("a"))
	assert.False(t, room.HasMember("c"))
}
