package domain

// DiffOp is the closed set of buffer edit operations.
type DiffOp string

const (
	DiffFullReplace DiffOp = "full-replace"
	DiffAdd         DiffOp = "add"
	DiffDelete      DiffOp = "delete"
	DiffReplace     DiffOp = "replace"
)

// Diff is one incremental edit to a sender's own buffer.
type Diff struct {
	Op    DiffOp `json:"type"`
	Index int    `json:"index,omitempty"`
	Count int    `json:"count,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Validate rejects malformed diffs synchronously; a diff that fails here is
// never queued.
func (d Diff) Validate(maxTextLen int) error {
	switch d.Op {
	case DiffFullReplace:
	case DiffAdd, DiffReplace:
		if d.Index < 0 {
			return NewError(CodeValidation, "diff index must not be negative", nil)
		}
	case DiffDelete:
		if d.Index < 0 || d.Count < 0 {
			return NewError(CodeValidation, "diff index and count must not be negative", nil)
		}
	default:
		return NewError(CodeValidation, "unknown diff type", map[string]any{"type": string(d.Op)})
	}
	if len([]rune(d.Text)) > maxTextLen {
		return NewError(CodeValidation, "diff text exceeds maximum length", nil)
	}
	return nil
}
