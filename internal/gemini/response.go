package gemini

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Status is a two-digit gemini response code.
type Status int

const (
	StatusInput          Status = 10
	StatusSensitiveInput Status = 11

	StatusSuccess Status = 20

	StatusRedirectTemporary Status = 30
	StatusRedirectPermanent Status = 31

	StatusTemporaryFailure  Status = 40
	StatusServerUnavailable Status = 41
	StatusCGIError          Status = 42
	StatusProxyError        Status = 43
	StatusSlowDown          Status = 44

	StatusPermanentFailure    Status = 50
	StatusNotFound            Status = 51
	StatusGone                Status = 52
	StatusProxyRequestRefused Status = 53
	StatusBadRequest          Status = 59

	StatusCertificateRequired      Status = 60
	StatusCertificateNotAuthorized Status = 61
	StatusCertificateNotValid      Status = 62
)

// Class is the leading digit of a status.
type Class int

const (
	ClassInput        Class = 1
	ClassSuccess      Class = 2
	ClassRedirect     Class = 3
	ClassTempFailure  Class = 4
	ClassPermFailure  Class = 5
	ClassCertRequired Class = 6
)

func (s Status) Class() Class {
	return Class(int(s) / 10)
}

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassSuccess:
		return "success"
	case ClassRedirect:
		return "redirect"
	case ClassTempFailure:
		return "temporary_failure"
	case ClassPermFailure:
		return "permanent_failure"
	case ClassCertRequired:
		return "certificate_required"
	default:
		return "unknown"
	}
}

const (
	MIMEGemtext = "text/gemini"

	maxMetaLen = 1024
)

// Response is one of Input, Success, Redirect, TempFailure, PermFailure or
// CertRequired. Only Success carries a body.
type Response interface {
	Status() Status
	Meta() string
	response()
}

type Input struct {
	Prompt    string
	Sensitive bool
}

func (r Input) Status() Status {
	if r.Sensitive {
		return StatusSensitiveInput
	}
	return StatusInput
}

func (r Input) Meta() string { return r.Prompt }
func (Input) response() {}

type Success struct {
	MIME string
	Body []byte
}

func (Success) Status() Status { return StatusSuccess }

func (r Success) Meta() string {
	if strings.TrimSpace(r.MIME) == "" {
		return MIMEGemtext
	}
	return r.MIME
}

func (Success) response() {}

type Redirect struct {
	Target    string
	Permanent bool
}

func (r Redirect) Status() Status {
	if r.Permanent {
		return StatusRedirectPermanent
	}
	return StatusRedirectTemporary
}

func (r Redirect) Meta() string { return r.Target }
func (Redirect) response() {}

type TempFailure struct {
	Code    Status
	Message string
}

func (r TempFailure) Status() Status {
	return codeInClass(r.Code, ClassTempFailure, StatusTemporaryFailure)
}

func (r TempFailure) Meta() string { return metaOr(r.Message, "temporary failure") }
func (TempFailure) response() {}

type PermFailure struct {
	Code    Status
	Message string
}

func (r PermFailure) Status() Status {
	return codeInClass(r.Code, ClassPermFailure, StatusPermanentFailure)
}

func (r PermFailure) Meta() string { return metaOr(r.Message, "permanent failure") }
func (PermFailure) response() {}

type CertRequired struct {
	Code    Status
	Message string
}

func (r CertRequired) Status() Status {
	return codeInClass(r.Code, ClassCertRequired, StatusCertificateRequired)
}

func (r CertRequired) Meta() string { return metaOr(r.Message, "client certificate required") }
func (CertRequired) response() {}

func NotFound() Response {
	return PermFailure{Code: StatusNotFound, Message: "not found"}
}

func BadRequest(message string) Response {
	return PermFailure{Code: StatusBadRequest, Message: metaOr(message, "bad request")}
}

func codeInClass(code Status, class Class, fallback Status) Status {
	if code.Class() == class {
		return code
	}
	return fallback
}

func metaOr(meta, fallback string) string {
	if strings.TrimSpace(meta) == "" {
		return fallback
	}
	return meta
}

// WriteResponse serializes resp as "<status> <meta>\r\n", followed by
// "<body>\r\n" for a Success response.
func WriteResponse(w io.Writer, resp Response) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(strconv.Itoa(int(resp.Status())))
	bw.WriteByte(' ')
	bw.WriteString(cleanMeta(resp.Meta()))
	bw.Write(crlf)
	if ok, isSuccess := resp.(Success); isSuccess {
		bw.Write(ok.Body)
		bw.Write(crlf)
	}
	return bw.Flush()
}

// cleanMeta keeps the header on one line and within maxMetaLen bytes.
func cleanMeta(meta string) string {
	meta = strings.NewReplacer("\r", " ", "\n", " ").Replace(meta)
	if len(meta) <= maxMetaLen {
		return meta
	}
	cut := maxMetaLen
	for cut > 0 && !utf8.RuneStart(meta[cut]) {
		cut--
	}
	return meta[:cut]
}
