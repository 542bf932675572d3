package gemini

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	Scheme = "gemini"

	// MaxRequestLen is the longest URL a client may send, excluding CRLF.
	MaxRequestLen = 1024
	maxFrameLen   = MaxRequestLen + 2
)

var crlf = []byte("\r\n")

// Request is one validated request line.
type Request struct {
	Raw string
	URL *url.URL
	// Query is the percent-decoded query, meaningful when HasQuery is set.
	Query    string
	HasQuery bool
}

// ReadRequestLine consumes bytes until CRLF and returns the line without it.
// It never reads more than MaxRequestLen+2 bytes from r.
func ReadRequestLine(r io.Reader) (string, error) {
	buf := make([]byte, maxFrameLen)
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if i := bytes.Index(buf[:n], crlf); i >= 0 {
			return string(buf[:i]), nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: %w", ErrFraming, ErrUnexpectedClose)
			}
			return "", fmt.Errorf("%w: %w", ErrFraming, err)
		}
	}
	return "", fmt.Errorf("%w: %w", ErrFraming, ErrRequestTooLong)
}

// ParseRequest validates a request line as an absolute gemini URL.
func ParseRequest(line string) (Request, error) {
	if strings.TrimSpace(line) == "" {
		return Request{}, fmt.Errorf("%w: empty request", ErrBadRequest)
	}
	if !utf8.ValidString(line) {
		return Request{}, fmt.Errorf("%w: request is not utf-8", ErrBadRequest)
	}
	u, err := url.Parse(line)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if !u.IsAbs() || u.Opaque != "" {
		return Request{}, fmt.Errorf("%w: url must be absolute", ErrBadRequest)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return Request{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.User != nil {
		return Request{}, fmt.Errorf("%w: userinfo not allowed", ErrBadRequest)
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == ".." || strings.ContainsRune(seg, 0) {
			return Request{}, fmt.Errorf("%w: invalid path segment %q", ErrBadRequest, seg)
		}
	}

	req := Request{Raw: line, URL: u}
	if u.RawQuery != "" || u.ForceQuery {
		// PathUnescape keeps '+' literal; gemini queries are percent-encoded only.
		q, err := url.PathUnescape(u.RawQuery)
		if err != nil {
			return Request{}, fmt.Errorf("%w: query: %v", ErrBadRequest, err)
		}
		req.Query = q
		req.HasQuery = true
	}
	return req, nil
}

// Path returns the decoded URL path, "/" when empty.
func (r Request) Path() string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}
