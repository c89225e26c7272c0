package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := New("/media/", nil)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"absolute url", "https://host/media/products/a.jpg", "products/a.jpg"},
		{"absolute url with query", "http://host:8000/media/products/a.jpg?v=2", "products/a.jpg"},
		{"root relative", "/media/products/b.png", "products/b.png"},
		{"relative with prefix", "media/products/c.png", "products/c.png"},
		{"already relative", "products/d.png", "products/d.png"},
		{"many leading slashes", "///media//products/e.png", "products/e.png"},
		{"static asset", "static/x.png", ""},
		{"static asset absolute", "https://host/static/website/images/default-image.svg", ""},
		{"app asset", "website/images/default-image.svg", ""},
		{"media then static", "/media/static/x.png", ""},
		{"doubled media prefix", "media/media/products/f.jpg", "products/f.jpg"},
		{"empty", "", ""},
		{"whitespace", "   ", ""},
		{"url without path", "https://host", ""},
		{"malformed url", "http://[::1", ""},
		{"surrounding spaces", "  /media/products/g.jpg ", "products/g.jpg"},
		{"space after prefix", "media/ x.jpg", "x.jpg"},
		{"static behind spaced prefix", "https://host/media/ static/x.png", ""},
		{"static behind tab", "/media/\tstatic/y.png", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.raw))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New("media/", nil)
	inputs := []string{
		"https://host/media/products/a.jpg",
		"/media/media/x.jpg",
		"/https://host/media/y.jpg",
		"media/https://host/media/static/z.png",
		"products/a.jpg",
		"static/x.png",
		"http://[::1",
		"",
		"//media/",
		"media/ x.jpg",
		"https://host/media/ static/x.png",
		"/media/\tstatic/y.png",
		"https://host/media/%20products/a.jpg",
		" media/ /media/ products/b.jpg ",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		assert.Equal(t, once, n.Normalize(once), "input %q", in)
	}
}

func TestNormalize_NoMediaPrefix(t *testing.T) {
	n := New("", []string{"assets/"})

	assert.Equal(t, "media/products/a.jpg", n.Normalize("/media/products/a.jpg"))
	assert.Equal(t, "static/x.png", n.Normalize("static/x.png"))
	assert.Equal(t, "", n.Normalize("assets/logo.svg"))
}

func TestNew_PrefixMatchesWholeSegment(t *testing.T) {
	n := New("media", nil)

	assert.Equal(t, "mediabox/a.jpg", n.Normalize("mediabox/a.jpg"))
	assert.Equal(t, "a.jpg", n.Normalize("media/a.jpg"))
	assert.Equal(t, "https://shop.example/media/a.jpg", n.URL("https://shop.example", "a.jpg"))
}

func TestURL(t *testing.T) {
	n := New("/media/", nil)

	assert.Equal(t, "https://shop.example/media/products/a.jpg", n.URL("https://shop.example/", "products/a.jpg"))
	assert.Equal(t, "https://cdn.example/a.jpg", n.URL("https://shop.example", "https://cdn.example/a.jpg"))
	assert.Equal(t, "", n.URL("https://shop.example", ""))
}
