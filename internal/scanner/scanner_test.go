package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScanner struct{ name string }

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Discover(context.Context, Request) ([]Candidate, error) { return nil, nil }

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: "rss"})
	reg.Register(stubScanner{name: "html"})

	got, err := reg.Resolve("html")
	require.NoError(t, err)
	assert.Equal(t, "html", got.Name())
	assert.Equal(t, []string{"html", "rss"}, reg.Names())

	_, err = reg.Resolve("missing")
	assert.Error(t, err)
}

func TestFilterAllow(t *testing.T) {
	t.Parallel()

	f := Filter{
		Hosts:   []string{"theguardian.com"},
		Include: []string{"/2025/", "/world/"},
		Exclude: DefaultExclude,
	}

	assert.True(t, f.Allow("https://www.theguardian.com/world/2025/jan/01/story"))
	assert.False(t, f.Allow("https://www.theguardian.com/world/live/2025/jan/01/blog"))
	assert.False(t, f.Allow("https://example.com/world/2025/story"))
	assert.False(t, f.Allow("https://www.theguardian.com/about"))
	assert.False(t, f.Allow(""))
	assert.True(t, Filter{}.Allow("https://anything.test/x"))
}

func TestInferCategory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "culture", InferCategory("https://x.test/books/2025/a", ""))
	assert.Equal(t, "sport", InferCategory("https://x.test/football/a", "news"))
	assert.Equal(t, "news", InferCategory("https://x.test/a", "news"))
	assert.Equal(t, "general", InferCategory("https://x.test/a", ""))
}
