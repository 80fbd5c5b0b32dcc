package instagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igfetch/pkg/errors"
	"igfetch/pkg/models"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "natgeo", want: "natgeo"},
		{name: "at prefix", input: "@nat.geo_", want: "nat.geo_"},
		{name: "whitespace", input: "  user1  ", want: "user1"},
		{name: "empty", input: "", wantErr: true},
		{name: "only at", input: "@", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 31), wantErr: true},
		{name: "max length", input: strings.Repeat("a", 30), want: strings.Repeat("a", 30)},
		{name: "bad chars", input: "nat-geo", wantErr: true},
		{name: "leading dot", input: ".natgeo", wantErr: true},
		{name: "trailing dot", input: "natgeo.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeUsername(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeReelURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "full reel", input: "https://www.instagram.com/reel/Cxyz123/", want: "https://www.instagram.com/reel/Cxyz123/"},
		{name: "missing scheme", input: "instagram.com/reel/Cxyz123", want: "https://instagram.com/reel/Cxyz123"},
		{name: "post link", input: "https://www.instagram.com/p/ABC/", want: "https://www.instagram.com/p/ABC/"},
		{name: "other host", input: "https://example.com/reel/ABC", wantErr: true},
		{name: "profile link", input: "https://www.instagram.com/natgeo/", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeReelURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestConstructors(t *testing.T) {
	req, err := NewStoriesRequest("@natgeo")
	require.NoError(t, err)
	assert.Equal(t, models.KindStories, req.Kind())
	assert.Equal(t, "natgeo", req.Target())

	reel, err := NewReelRequest("instagram.com/reel/Cxyz123/")
	require.NoError(t, err)
	assert.Equal(t, models.KindReel, reel.Kind())
	assert.Equal(t, "https://instagram.com/reel/Cxyz123/", reel.Target())

	_, err = NewStoriesRequest("bad name")
	assert.Error(t, err)
}

func TestShortcodeAndLabel(t *testing.T) {
	assert.Equal(t, "Cxyz123", Shortcode("https://www.instagram.com/reel/Cxyz123/?igsh=abc"))
	assert.Equal(t, "ABC", Shortcode("https://www.instagram.com/p/ABC/"))
	assert.Equal(t, "", Shortcode("https://www.instagram.com/natgeo/"))

	reel, err := NewReelRequest("https://www.instagram.com/reels/QQQ/")
	require.NoError(t, err)
	assert.Equal(t, "QQQ", TargetLabel(reel))

	stories, err := NewStoriesRequest("natgeo")
	require.NoError(t, err)
	assert.Equal(t, "natgeo", TargetLabel(stories))
	assert.Equal(t, "https://www.instagram.com/natgeo/", ProfileURL("natgeo"))
}
