package gemini

import "errors"

var (
	ErrFraming           = errors.New("gemini: malformed request framing")
	ErrUnexpectedClose   = errors.New("gemini: stream closed before request terminator")
	ErrRequestTooLong    = errors.New("gemini: request exceeds maximum length")
	ErrBadRequest        = errors.New("gemini: bad request")
	ErrUnsupportedScheme = errors.New("gemini: unsupported scheme")
)

// IsFramingError reports whether err means the request never arrived intact.
// Framing failures close the connection without a response.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrFraming)
}
