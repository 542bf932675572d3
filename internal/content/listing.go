package content

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RenderListing builds a gemtext index of entries under sitePath: a heading
// naming the directory, then one link line per entry in the given order.
func RenderListing(sitePath string, entries []fs.DirEntry, hideDotfiles bool) []byte {
	sitePath = path.Clean("/" + sitePath)
	title := path.Base(sitePath)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", linkLabel(title))
	base := strings.TrimSuffix(sitePath, "/")
	for _, e := range entries {
		name := e.Name()
		if hideDotfiles && strings.HasPrefix(name, ".") {
			continue
		}
		link := base + "/" + name
		if e.IsDir() {
			link += "/"
		}
		target := (&url.URL{Path: link}).EscapedPath()
		fmt.Fprintf(&b, "=> %s %s\n", target, linkLabel(link))
	}
	return []byte(b.String())
}

// linkLabel keeps a label on its link line; control characters in file
// names become U+FFFD.
func linkLabel(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return utf8.RuneError
		}
		return r
	}, name)
}

// listing reads dir; os.ReadDir returns entries sorted by name, which keeps
// generated listings byte-identical across requests.
func (r *Root) listing(dir, sitePath string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("content: list %s: %w", r.rel(dir), err)
	}
	return RenderListing(sitePath, entries, r.opts.HideDotfiles), nil
}
