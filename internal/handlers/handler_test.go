package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgi-ad-studio/internal/studio"
)

func TestSplitDataURL(t *testing.T) {
	mimeType, data, ok := splitDataURL("data:image/jpeg;base64,QUJD")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, "QUJD", data)

	mimeType, data, ok = splitDataURL("data:;base64,QUJD")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, "QUJD", data)

	_, _, ok = splitDataURL("https://example.com/ad.jpg")
	assert.False(t, ok)

	_, _, ok = splitDataURL("data:image/jpeg;base64")
	assert.False(t, ok)
}

func TestStatusText(t *testing.T) {
	empty := statusText(studio.Snapshot{Step: studio.StepPrepare})
	assert.Equal(t, "Step: PREPARE", empty)

	full := statusText(studio.Snapshot{
		Step:        studio.StepFinalize,
		Original:    studio.Artifact{Base64: "a", MimeType: "image/png"},
		Final:       studio.Artifact{Base64: "b", MimeType: "image/jpeg"},
		Scene:       "a marble podium",
		VideoPrompt: "slow dolly zoom",
		HasPrepared: true,
	})
	assert.Contains(t, full, "Step: FINALIZE")
	assert.Contains(t, full, "Product photo: uploaded")
	assert.Contains(t, full, "Background: removed")
	assert.Contains(t, full, "Scene: a marble podium")
	assert.Contains(t, full, "Final ad: generated")
	assert.Contains(t, full, "Video prompt: generated")

	busy := statusText(studio.Snapshot{Step: studio.StepPrepare, Busy: true, LastError: "boom"})
	assert.Contains(t, busy, "in progress")
	assert.Contains(t, busy, "Last error: boom")
}

func TestRatioList(t *testing.T) {
	assert.Equal(t, "1:1, 9:16, 16:9, 4:5, 2:3", ratioList())
}
