package content

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/geminid/internal/gemini"
)

// Placeholder is replaced by the submitted answer in phase two.
const Placeholder = "{INPUT}"

// Form is a parsed form document. The first line starting with "?" is the
// prompt; "??" marks sensitive input.
type Form struct {
	Prompt    string
	Sensitive bool
	HasPrompt bool

	doc []byte
}

func ParseForm(doc []byte) (Form, error) {
	if !utf8.Valid(doc) {
		return Form{}, ErrInvalidDocument
	}
	f := Form{doc: doc}
	for _, line := range strings.SplitAfter(string(doc), "\n") {
		if !strings.HasPrefix(line, "?") {
			continue
		}
		line = strings.TrimRight(line, "\r\n")
		f.Sensitive = strings.HasPrefix(line, "??")
		f.Prompt = strings.TrimSpace(strings.TrimLeft(line, "?"))
		f.HasPrompt = true
		break
	}
	return f, nil
}

// PromptResponse is the phase one reply: status 10, or 11 for sensitive input.
func (f Form) PromptResponse() (gemini.Response, error) {
	if !f.HasPrompt {
		return nil, ErrNoPrompt
	}
	return gemini.Input{Prompt: f.Prompt, Sensitive: f.Sensitive}, nil
}

// Fill substitutes answer for each placeholder, then drops every line
// starting with "?". Lines an answer introduces are filtered too.
func (f Form) Fill(answer string) []byte {
	filled := strings.ReplaceAll(string(f.doc), Placeholder, answer)
	var out bytes.Buffer
	for _, line := range strings.SplitAfter(filled, "\n") {
		if strings.HasPrefix(line, "?") {
			continue
		}
		out.WriteString(line)
	}
	return out.Bytes()
}

func (r *Root) readForm(p string) (Form, error) {
	data, err := r.read(p)
	if err != nil {
		return Form{}, err
	}
	form, err := ParseForm(data)
	if err != nil {
		return Form{}, fmt.Errorf("%w: %s", err, r.rel(p))
	}
	return form, nil
}
