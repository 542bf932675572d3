package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/danmuck/geminid/internal/gemini"
)

// Kind classifies what a request path resolved to.
type Kind int

const (
	KindUnresolved Kind = iota
	KindFile
	KindDirectoryIndex
	KindDirectoryListing
	KindFormPrompt
	KindFormSubmit
)

func (k Kind) String() string {
	switch k {
	case KindUnresolved:
		return "unresolved"
	case KindFile:
		return "file"
	case KindDirectoryIndex:
		return "directory_index"
	case KindDirectoryListing:
		return "directory_listing"
	case KindFormPrompt:
		return "form_prompt"
	case KindFormSubmit:
		return "form_submit"
	default:
		return "unknown"
	}
}

// Target is one resolved request. Path is the filesystem path; for
// KindDirectoryIndex it names the index document and Dir its directory.
type Target struct {
	Kind     Kind
	Path     string
	Dir      string
	SitePath string
	Query    string
}

// Options tunes resolution conventions.
type Options struct {
	IndexName    string
	FormSuffix   string
	HideDotfiles bool
}

func DefaultOptions() Options {
	return Options{
		IndexName:  "index.gmi",
		FormSuffix: ".form.gmi",
	}
}

// Root is an immutable content root, safe for concurrent use.
type Root struct {
	dir  string
	opts Options
}

// NewRoot resolves dir to an absolute, symlink-free directory path.
func NewRoot(dir string, opts Options) (*Root, error) {
	abs, err := filepath.Abs(strings.TrimSpace(dir))
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("content: open root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("content: open root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, abs)
	}
	defaults := DefaultOptions()
	if strings.TrimSpace(opts.IndexName) == "" {
		opts.IndexName = defaults.IndexName
	}
	if strings.TrimSpace(opts.FormSuffix) == "" {
		opts.FormSuffix = defaults.FormSuffix
	}
	return &Root{dir: abs, opts: opts}, nil
}

func (r *Root) Dir() string {
	return r.dir
}

// Serve resolves req and builds its response. It never returns nil.
func (r *Root) Serve(req gemini.Request) (gemini.Response, Target) {
	target, err := r.Resolve(req)
	if err != nil {
		return Classify(err), target
	}
	resp, err := r.Respond(target)
	if err != nil {
		return Classify(err), target
	}
	return resp, target
}

// Resolve maps the request path onto the content root.
//
// Order: missing path, form document, regular file, directory. Form
// documents are not stat'ed here; reading them in Respond is the existence
// probe.
func (r *Root) Resolve(req gemini.Request) (Target, error) {
	sitePath := path.Clean("/" + req.Path())
	// a rooted Clean cannot climb above "/", so rel has no ".." segments
	rel := strings.TrimPrefix(sitePath, "/")

	resolved, err := r.contain(filepath.Join(r.dir, filepath.FromSlash(rel)))
	if err != nil {
		return Target{SitePath: sitePath}, err
	}

	if rel != "" && strings.HasSuffix(path.Base(sitePath), r.opts.FormSuffix) {
		t := Target{Kind: KindFormPrompt, Path: resolved, SitePath: sitePath}
		if req.HasQuery {
			t.Kind = KindFormSubmit
			t.Query = req.Query
		}
		return t, nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return Target{SitePath: sitePath}, fmt.Errorf("%w: %s", ErrNotFound, sitePath)
	}
	switch {
	case info.Mode().IsRegular():
		return Target{Kind: KindFile, Path: resolved, SitePath: sitePath}, nil
	case info.IsDir():
		index, err := r.contain(filepath.Join(resolved, r.opts.IndexName))
		if err == nil {
			if st, err := os.Stat(index); err == nil && st.Mode().IsRegular() {
				return Target{Kind: KindDirectoryIndex, Path: index, Dir: resolved, SitePath: sitePath}, nil
			}
		}
		return Target{Kind: KindDirectoryListing, Path: resolved, Dir: resolved, SitePath: sitePath}, nil
	default:
		return Target{SitePath: sitePath}, fmt.Errorf("%w: %s is not a file", ErrNotFound, sitePath)
	}
}

// Respond builds the response for a resolved target.
func (r *Root) Respond(t Target) (gemini.Response, error) {
	switch t.Kind {
	case KindFile:
		data, err := r.read(t.Path)
		if err != nil {
			return nil, err
		}
		return gemini.Success{MIME: gemini.MIMEGemtext, Body: data}, nil
	case KindDirectoryIndex:
		data, err := r.read(t.Path)
		if err != nil {
			// unreadable index falls back to a listing
			return r.respondListing(t.Dir, t.SitePath)
		}
		return gemini.Success{MIME: gemini.MIMEGemtext, Body: data}, nil
	case KindDirectoryListing:
		return r.respondListing(t.Path, t.SitePath)
	case KindFormPrompt:
		form, err := r.readForm(t.Path)
		if err != nil {
			return nil, err
		}
		return form.PromptResponse()
	case KindFormSubmit:
		form, err := r.readForm(t.Path)
		if err != nil {
			return nil, err
		}
		return gemini.Success{MIME: gemini.MIMEGemtext, Body: form.Fill(t.Query)}, nil
	default:
		return nil, fmt.Errorf("content: unknown target kind %d", t.Kind)
	}
}

func (r *Root) respondListing(dir, sitePath string) (gemini.Response, error) {
	body, err := r.listing(dir, sitePath)
	if err != nil {
		return nil, err
	}
	return gemini.Success{MIME: gemini.MIMEGemtext, Body: body}, nil
}

func (r *Root) read(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrNotFound, r.rel(p), err)
	}
	return data, nil
}

// contain evaluates symlinks and rejects anything landing outside the root.
func (r *Root) contain(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, r.rel(p))
		}
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, r.rel(p), err)
	}
	if !isWithin(resolved, r.dir) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, r.rel(p))
	}
	return resolved, nil
}

func (r *Root) rel(p string) string {
	if rel, err := filepath.Rel(r.dir, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return p
}

func isWithin(target string, root string) bool {
	p := filepath.Clean(target)
	r := filepath.Clean(root)
	if p == r {
		return true
	}
	return strings.HasPrefix(p, r+string(os.PathSeparator))
}
