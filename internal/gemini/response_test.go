package gemini

import (
	"bytes"
	"strings"
	"testing"

	"github.com/danmuck/geminid/internal/testutil/testlog"
)

func encode(t *testing.T, resp Response) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("write response: %v", err)
	}
	return buf.String()
}

func TestWriteResponseSuccessCarriesBody(t *testing.T) {
	testlog.Start(t)

	got := encode(t, Success{Body: []byte("# Hello")})
	if got != "20 text/gemini\r\n# Hello\r\n" {
		t.Fatalf("unexpected wire bytes: %q", got)
	}
}

func TestWriteResponseHeaderOnlyClasses(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		resp Response
		want string
	}{
		{Input{Prompt: "Enter name"}, "10 Enter name\r\n"},
		{Input{Prompt: "Password", Sensitive: true}, "11 Password\r\n"},
		{Redirect{Target: "/new"}, "30 /new\r\n"},
		{Redirect{Target: "/new", Permanent: true}, "31 /new\r\n"},
		{TempFailure{}, "40 temporary failure\r\n"},
		{TempFailure{Code: StatusSlowDown, Message: "5"}, "44 5\r\n"},
		{NotFound(), "51 not found\r\n"},
		{BadRequest("unsupported scheme"), "59 unsupported scheme\r\n"},
		{PermFailure{Code: StatusSuccess}, "50 permanent failure\r\n"},
		{CertRequired{}, "60 client certificate required\r\n"},
	}
	for _, tc := range cases {
		if got := encode(t, tc.resp); got != tc.want {
			t.Fatalf("%T: got %q want %q", tc.resp, got, tc.want)
		}
	}
}

func TestStatusNeverZeroAndClassMatches(t *testing.T) {
	testlog.Start(t)

	resps := []Response{Input{}, Success{}, Redirect{}, TempFailure{}, PermFailure{}, CertRequired{}}
	want := []Class{ClassInput, ClassSuccess, ClassRedirect, ClassTempFailure, ClassPermFailure, ClassCertRequired}
	for i, resp := range resps {
		if resp.Status() == 0 {
			t.Fatalf("%T: zero status", resp)
		}
		if resp.Status().Class() != want[i] {
			t.Fatalf("%T: class %s, want %s", resp, resp.Status().Class(), want[i])
		}
	}
}

func TestWriteResponseMetaStaysOnOneLine(t *testing.T) {
	testlog.Start(t)

	got := encode(t, Input{Prompt: "line one\r\n20 text/gemini"})
	if strings.Count(got, "\r\n") != 1 {
		t.Fatalf("meta broke header framing: %q", got)
	}

	long := strings.Repeat("é", maxMetaLen)
	got = encode(t, Input{Prompt: long})
	meta := strings.TrimSuffix(strings.TrimPrefix(got, "10 "), "\r\n")
	if len(meta) > maxMetaLen {
		t.Fatalf("meta not capped: %d bytes", len(meta))
	}
	if !strings.HasPrefix(long, meta) {
		t.Fatalf("meta cut mid-rune")
	}
}
