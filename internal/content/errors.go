package content

import (
	"errors"

	"github.com/danmuck/geminid/internal/gemini"
)

var (
	ErrNotFound         = errors.New("content: not found")
	ErrOutsideRoot      = errors.New("content: path escapes content root")
	ErrNoPrompt         = errors.New("content: form document has no prompt line")
	ErrInvalidDocument  = errors.New("content: document is not valid utf-8")
	ErrRootNotDirectory = errors.New("content: root is not a directory")
)

// Classify maps a request or resolution error onto exactly one response.
// Error text never reaches the client.
func Classify(err error) gemini.Response {
	switch {
	case errors.Is(err, gemini.ErrUnsupportedScheme):
		return gemini.BadRequest("unsupported scheme")
	case errors.Is(err, gemini.ErrBadRequest):
		return gemini.BadRequest("bad request")
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrOutsideRoot), errors.Is(err, ErrNoPrompt):
		return gemini.NotFound()
	case errors.Is(err, ErrInvalidDocument):
		return gemini.PermFailure{Code: gemini.StatusPermanentFailure, Message: "invalid document"}
	default:
		return gemini.TempFailure{Code: gemini.StatusTemporaryFailure, Message: "temporary failure"}
	}
}
