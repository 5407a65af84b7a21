package ptyid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var providers = []string{"co", "codex", "continue", "claude", "gemini", "cursor"}

func TestParseRoundTrip(t *testing.T) {
	suffixes := []string{"1", "task42", "d3b07384d113edec49eaa6238ad5ff00", "Xy_z"}
	for _, p := range providers {
		for _, k := range []Kind{KindMain, KindChat} {
			for _, s := range suffixes {
				got, err := Parse(Make(p, k, s), providers)
				require.NoError(t, err)
				assert.Equal(t, ID{ProviderID: p, Kind: k, Suffix: s}, got)
			}
		}
	}
}

func TestParsePrefersLongestProvider(t *testing.T) {
	got, err := Parse("codex-main-abc", []string{"co", "codex"})
	require.NoError(t, err)
	assert.Equal(t, "codex", got.ProviderID)

	got, err = Parse("co-chat-abc", []string{"codex", "co", "continue"})
	require.NoError(t, err)
	assert.Equal(t, "co", got.ProviderID)
	assert.Equal(t, KindChat, got.Kind)
}

func TestParseSuffixWithDashes(t *testing.T) {
	got, err := Parse("claude-main-550e8400-e29b-41d4", providers)
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4", got.Suffix)
	assert.Equal(t, "claude-main-550e8400-e29b-41d4", got.String())
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("aider-main-1", providers)
	assert.ErrorIs(t, err, ErrUnrecognized)

	_, err = Parse("claude-other-1", providers)
	assert.ErrorIs(t, err, ErrUnrecognized)

	_, err = Parse("claude-main-", providers)
	assert.ErrorIs(t, err, ErrUnrecognized)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindMain, KindOf(Main("claude", "t1")))
	assert.Equal(t, KindChat, KindOf(Chat("claude", "c1")))
}
