package guid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_AcceptedShapes(t *testing.T) {
	want := Key("AB12CD34-EF56-7890-AB12-CD34EF567890")

	tests := []struct {
		name string
		raw  string
	}{
		{"hyphenated lowercase", "ab12cd34-ef56-7890-ab12-cd34ef567890"},
		{"hyphenated uppercase", "AB12CD34-EF56-7890-AB12-CD34EF567890"},
		{"braced hyphenated", "{AB12CD34-EF56-7890-AB12-CD34EF567890}"},
		{"braced lowercase", "{ab12cd34-ef56-7890-ab12-cd34ef567890}"},
		{"compact", "ab12cd34ef567890ab12cd34ef567890"},
		{"braced compact", "{ab12cd34ef567890ab12cd34ef567890}"},
		{"surrounding whitespace", "  {AB12CD34-EF56-7890-AB12-CD34EF567890}  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"placeholder", "TBD"},
		{"too short", "ab12cd34-ef56-7890-ab12"},
		{"non-hex", "gb12cd34-ef56-7890-ab12-cd34ef567890"},
		{"unbalanced open brace", "{ab12cd34-ef56-7890-ab12-cd34ef567890"},
		{"unbalanced close brace", "ab12cd34-ef56-7890-ab12-cd34ef567890}"},
		{"partial hyphenation", "ab12cd34ef56-7890ab12cd34ef567890"},
		{"embedded text", "id=ab12cd34-ef56-7890-ab12-cd34ef567890"},
		{"33 hex digits", "ab12cd34ef567890ab12cd34ef5678901"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	k, err := Normalize("{ab12cd34-ef56-7890-ab12-cd34ef567890}")
	require.NoError(t, err)

	again, err := Normalize(string(k))
	require.NoError(t, err)
	assert.Equal(t, k, again)
}

func TestNormalize_SameIdentityAcrossFormats(t *testing.T) {
	a, err := Normalize("{AB12CD34-EF56-7890-AB12-CD34EF567890}")
	require.NoError(t, err)
	b, err := Normalize("ab12cd34ef567890ab12cd34ef567890")
	require.NoError(t, err)
	assert.Equal(t, a, b, "braced/hyphenated and compact forms are one identity")
}
