package cloudinary

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}

func TestNewWithCredentials(t *testing.T) {
	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/classroom/"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "/classroom/", svc.folder)
}

func TestBuildPublicID(t *testing.T) {
	id := BuildPublicID("a1-s2-Final Report (v2).PDF")
	assert.True(t, strings.HasPrefix(id, "a1-s2-Final-Report--v2-"), id)
	assert.True(t, strings.HasSuffix(id, ".pdf"), id)

	other := BuildPublicID("a1-s2-Final Report (v2).PDF")
	assert.NotEqual(t, id, other)

	fallback := BuildPublicID("???.zip")
	assert.True(t, strings.HasPrefix(fallback, "upload-"), fallback)
	assert.True(t, strings.HasSuffix(fallback, ".zip"), fallback)
}

func TestParseAssetURL(t *testing.T) {
	cases := []struct {
		url          string
		publicID     string
		resourceType string
	}{
		{"https://res.cloudinary.com/demo/raw/upload/v1712345678/classroom/a1-s10-report-1a2b3c4d.pdf", "classroom/a1-s10-report-1a2b3c4d.pdf", "raw"},
		{"https://res.cloudinary.com/demo/image/upload/v1/scan-9f8e7d6c.png", "scan-9f8e7d6c.png", "image"},
		{"https://res.cloudinary.com/demo/image/upload/notes.jpg", "notes.jpg", "image"},
	}

	for _, tc := range cases {
		publicID, resourceType, err := ParseAssetURL(tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.publicID, publicID)
		assert.Equal(t, tc.resourceType, resourceType)
	}

	for _, bad := range []string{"https://files.test/report.pdf", "/uploads/report.pdf", "https://res.cloudinary.com/demo/raw/upload"} {
		_, _, err := ParseAssetURL(bad)
		assert.Error(t, err, bad)
	}
}
