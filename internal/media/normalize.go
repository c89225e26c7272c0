// Package media canonicalizes image references into the storage-relative
// form cart lines and orders keep, e.g. "products/a.jpg".
package media

import (
	"net/url"
	"strings"
)

// DefaultMediaPrefix is the public path uploaded media is served under.
const DefaultMediaPrefix = "media/"

// DefaultStaticPrefixes are namespaces holding bundled assets rather than
// uploads. References into them normalize to "" so callers fall back to a
// default image.
var DefaultStaticPrefixes = []string{"static/", "website/"}

// Normalizer turns absolute URLs, root-relative paths and relative paths
// into one storage-relative form. The zero value is not usable; use New.
type Normalizer struct {
	mediaPrefix    string
	staticPrefixes []string
}

// New returns a Normalizer. A leading "/" on mediaPrefix is ignored and a
// trailing one is implied, so "media" only matches whole path segments; an
// empty mediaPrefix disables prefix stripping. Nil staticPrefixes selects
// DefaultStaticPrefixes.
func New(mediaPrefix string, staticPrefixes []string) *Normalizer {
	if staticPrefixes == nil {
		staticPrefixes = DefaultStaticPrefixes
	}
	prefix := strings.Trim(strings.TrimSpace(mediaPrefix), "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Normalizer{
		mediaPrefix:    prefix,
		staticPrefixes: staticPrefixes,
	}
}

// Normalize returns the storage-relative form of raw, or "" when raw is
// malformed or points into a static namespace.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(raw string) string {
	p := raw
	// Each step either shortens p or leaves it unchanged, so this terminates
	// at a fixed point of step, which is what makes Normalize idempotent.
	for {
		next, ok := n.step(p)
		if !ok {
			return ""
		}
		if next == p {
			break
		}
		p = next
	}
	if n.isStatic(p) {
		return ""
	}
	return p
}

// step strips one layer of URL, slashes, media prefix and surrounding
// whitespace. A fixed point of step has none of them left.
func (n *Normalizer) step(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if isAbsoluteURL(p) {
		u, err := url.Parse(p)
		if err != nil {
			return "", false
		}
		p = strings.TrimSpace(u.Path)
	}
	p = strings.TrimLeft(p, "/")
	if n.mediaPrefix != "" && strings.HasPrefix(p, n.mediaPrefix) {
		p = strings.TrimLeft(p[len(n.mediaPrefix):], "/")
	}
	return strings.TrimSpace(p), true
}

func (n *Normalizer) isStatic(p string) bool {
	for _, prefix := range n.staticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// URL rebuilds the public URL of a stored reference against base,
// e.g. ("https://shop.example", "products/a.jpg") ->
// "https://shop.example/media/products/a.jpg". Absolute references are
// returned unchanged and an empty ref yields "".
func (n *Normalizer) URL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if isAbsoluteURL(ref) {
		return ref
	}
	return strings.TrimRight(base, "/") + "/" + n.mediaPrefix + strings.TrimLeft(ref, "/")
}

func isAbsoluteURL(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
