package studio_test

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgi-ad-studio/internal/history"
	"cgi-ad-studio/internal/studio"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\nfakepngpayload")
	jpegBytes = []byte("\xff\xd8\xfffakejpegpayload")
)

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

type fakeGateway struct {
	prepare     func(ctx context.Context, imageBase64, mimeType string) (string, error)
	generateAd  func(ctx context.Context, imageBase64, mimeType, scene, aspectRatio string) (string, error)
	videoPrompt func(ctx context.Context, imageBase64, mimeType, scene string) (string, error)
	randomScene func(ctx context.Context, imageBase64, mimeType string) (string, error)
}

func (g *fakeGateway) PrepareImage(ctx context.Context, imageBase64, mimeType string) (string, error) {
	if g.prepare != nil {
		return g.prepare(ctx, imageBase64, mimeType)
	}
	return b64([]byte("prepared")), nil
}

func (g *fakeGateway) GenerateAd(ctx context.Context, imageBase64, mimeType, scene, aspectRatio string) (string, error) {
	if g.generateAd != nil {
		return g.generateAd(ctx, imageBase64, mimeType, scene, aspectRatio)
	}
	return b64([]byte("ad")), nil
}

func (g *fakeGateway) GenerateVideoPrompt(ctx context.Context, imageBase64, mimeType, scene string) (string, error) {
	if g.videoPrompt != nil {
		return g.videoPrompt(ctx, imageBase64, mimeType, scene)
	}
	return "a slow dolly zoom", nil
}

func (g *fakeGateway) GenerateRandomScene(ctx context.Context, imageBase64, mimeType string) (string, error) {
	if g.randomScene != nil {
		return g.randomScene(ctx, imageBase64, mimeType)
	}
	return "a marble podium", nil
}

func newTestController(t *testing.T, gw studio.Gateway) (*studio.Controller, *history.Manager) {
	t.Helper()

	hist := history.NewManager(history.Options{
		Store: history.NewFileStore(filepath.Join(t.TempDir(), "history.json")),
	})
	hist.Load()

	ctrl := studio.New(studio.Options{
		Gateway: gw,
		History: hist,
	})
	return ctrl, hist
}

func TestUploadSeedsPreparedWithOriginal(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})

	require.NoError(t, ctrl.Upload(pngBytes))

	snap := ctrl.State()
	assert.Equal(t, studio.StepPrepare, snap.Step)
	assert.Equal(t, b64(pngBytes), snap.Original.Base64)
	assert.Equal(t, snap.Original.Base64, snap.Prepared.Base64)
	assert.Equal(t, "image/png", snap.Original.MimeType)
	assert.False(t, snap.HasPrepared)
}

func TestUploadResetsPreparation(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.Prepare(ctx))
	require.True(t, ctrl.State().HasPrepared)

	require.NoError(t, ctrl.Upload(jpegBytes))

	snap := ctrl.State()
	assert.False(t, snap.HasPrepared)
	assert.Equal(t, b64(jpegBytes), snap.Original.Base64)
	assert.Equal(t, snap.Original.Base64, snap.Prepared.Base64)
}

func TestUploadRejectsNonImage(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})

	err := ctrl.Upload([]byte("definitely not an image"))

	var decodeErr *studio.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	snap := ctrl.State()
	assert.True(t, snap.Original.IsZero())
	assert.NotEmpty(t, snap.LastError)
}

func TestPrepareFixesMimeToPNG(t *testing.T) {
	gw := &fakeGateway{
		prepare: func(_ context.Context, imageBase64, mimeType string) (string, error) {
			assert.Equal(t, b64(jpegBytes), imageBase64)
			assert.Equal(t, "image/jpeg", mimeType)
			return b64([]byte("cleaned")), nil
		},
	}
	ctrl, _ := newTestController(t, gw)

	require.NoError(t, ctrl.Upload(jpegBytes))
	require.NoError(t, ctrl.Prepare(context.Background()))

	snap := ctrl.State()
	assert.Equal(t, b64([]byte("cleaned")), snap.Prepared.Base64)
	assert.Equal(t, "image/png", snap.Prepared.MimeType)
	assert.True(t, snap.HasPrepared)
	assert.Empty(t, snap.LastError)
}

func TestPrepareFailureKeepsState(t *testing.T) {
	gw := &fakeGateway{
		prepare: func(context.Context, string, string) (string, error) {
			return "", assert.AnError
		},
	}
	ctrl, _ := newTestController(t, gw)

	require.NoError(t, ctrl.Upload(pngBytes))
	err := ctrl.Prepare(context.Background())

	var gatewayErr *studio.GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	snap := ctrl.State()
	assert.Equal(t, snap.Original.Base64, snap.Prepared.Base64)
	assert.False(t, snap.HasPrepared)
	assert.NotEmpty(t, snap.LastError)
	assert.False(t, snap.Busy)
}

func TestAdvanceRequiresPrepared(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})

	err := ctrl.AdvanceToDesign()

	var preconditionErr *studio.PreconditionError
	require.ErrorAs(t, err, &preconditionErr)
	assert.Equal(t, studio.StepPrepare, ctrl.State().Step)
}

func TestDesignHappyPath(t *testing.T) {
	adData := b64([]byte("ad-jpeg"))
	gw := &fakeGateway{
		generateAd: func(_ context.Context, imageBase64, _, scene, aspectRatio string) (string, error) {
			assert.Equal(t, "a marble podium in a galaxy", scene)
			assert.Equal(t, "1:1", aspectRatio)
			return adData, nil
		},
	}
	ctrl, hist := newTestController(t, gw)
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.Prepare(ctx))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("a marble podium in a galaxy"))
	require.NoError(t, ctrl.Design(ctx, "1:1"))

	snap := ctrl.State()
	assert.Equal(t, studio.StepFinalize, snap.Step)
	assert.Equal(t, adData, snap.Final.Base64)
	assert.Equal(t, "image/jpeg", snap.Final.MimeType)
	assert.Empty(t, snap.VideoPrompt)

	entries := hist.Load()
	require.Len(t, entries, 1)
	assert.Equal(t, "a marble podium in a galaxy", entries[0].SceneDescription)
	assert.Empty(t, entries[0].VideoPrompt)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, snap.Final.DataURL(), entries[0].FinalAd.URL)
}

func TestDesignRequiresNonEmptyScene(t *testing.T) {
	ctrl, hist := newTestController(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("   "))

	err := ctrl.Design(ctx, "1:1")

	var preconditionErr *studio.PreconditionError
	require.ErrorAs(t, err, &preconditionErr)
	assert.Equal(t, studio.StepDesign, ctrl.State().Step)
	assert.Empty(t, hist.Entries())
}

func TestDesignRejectsUnknownAspectRatio(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("a scene"))

	err := ctrl.Design(ctx, "3:4")

	var preconditionErr *studio.PreconditionError
	require.ErrorAs(t, err, &preconditionErr)
}

func TestDesignFailureLeavesDesignStep(t *testing.T) {
	gw := &fakeGateway{
		generateAd: func(context.Context, string, string, string, string) (string, error) {
			return "", assert.AnError
		},
	}
	ctrl, hist := newTestController(t, gw)
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("a scene"))

	err := ctrl.Design(ctx, "1:1")

	var gatewayErr *studio.GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	snap := ctrl.State()
	assert.Equal(t, studio.StepDesign, snap.Step)
	assert.True(t, snap.Final.IsZero())
	assert.Empty(t, hist.Entries())
}

func TestHistoryAppendIsMonotonic(t *testing.T) {
	ctrl, hist := newTestController(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())

	scenes := []string{"first scene", "second scene", "third scene"}
	for i, scene := range scenes {
		require.NoError(t, ctrl.SetScene(scene))
		require.NoError(t, ctrl.Design(ctx, "1:1"))
		require.Len(t, hist.Entries(), i+1)
		require.NoError(t, ctrl.RedesignFromPrepared())
	}

	entries := hist.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "third scene", entries[0].SceneDescription)
	assert.Equal(t, "first scene", entries[2].SceneDescription)

	seen := map[string]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestVideoPromptUsesFrozenSceneAndAmendsHistory(t *testing.T) {
	gw := &fakeGateway{
		videoPrompt: func(_ context.Context, _, _, scene string) (string, error) {
			assert.Equal(t, "frozen scene", scene)
			return "  A slow dolly zoom...  ", nil
		},
	}
	ctrl, hist := newTestController(t, gw)
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("frozen scene"))
	require.NoError(t, ctrl.Design(ctx, "16:9"))

	before := hist.Entries()
	require.Len(t, before, 1)

	require.NoError(t, ctrl.GenerateVideoPrompt(ctx))

	assert.Equal(t, "A slow dolly zoom...", ctrl.State().VideoPrompt)

	after := hist.Entries()
	require.Len(t, after, 1)
	assert.Equal(t, "A slow dolly zoom...", after[0].VideoPrompt)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[0].Timestamp, after[0].Timestamp)
	assert.Equal(t, before[0].SceneDescription, after[0].SceneDescription)
}

func TestRedesignFromPreparedKeepsSceneAndPrepared(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("a scene"))
	require.NoError(t, ctrl.Design(ctx, "1:1"))

	preparedBefore := ctrl.State().Prepared
	require.NoError(t, ctrl.RedesignFromPrepared())

	snap := ctrl.State()
	assert.Equal(t, studio.StepDesign, snap.Step)
	assert.True(t, snap.Final.IsZero())
	assert.Empty(t, snap.VideoPrompt)
	assert.Equal(t, preparedBefore, snap.Prepared)
	assert.Equal(t, "a scene", snap.Scene)
}

func TestRedesignFromFinalSeedsPrepared(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("a scene"))
	require.NoError(t, ctrl.Design(ctx, "1:1"))

	finalBefore := ctrl.State().Final
	require.False(t, finalBefore.IsZero())

	require.NoError(t, ctrl.RedesignFromFinal())

	snap := ctrl.State()
	assert.Equal(t, studio.StepDesign, snap.Step)
	assert.Equal(t, finalBefore.Base64, snap.Prepared.Base64)
	assert.True(t, snap.HasPrepared)
	assert.True(t, snap.Final.IsZero())
	assert.Empty(t, snap.VideoPrompt)
}

func TestGenerateRandomSceneOverwritesScene(t *testing.T) {
	gw := &fakeGateway{
		randomScene: func(context.Context, string, string) (string, error) {
			return "  a giant bottle over the harbor  \n", nil
		},
	}
	ctrl, _ := newTestController(t, gw)
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("my own idea"))
	require.NoError(t, ctrl.GenerateRandomScene(ctx))

	assert.Equal(t, "a giant bottle over the harbor", ctrl.State().Scene)
}

func TestGenerateRandomSceneFailureKeepsScene(t *testing.T) {
	gw := &fakeGateway{
		randomScene: func(context.Context, string, string) (string, error) {
			return "", assert.AnError
		},
	}
	ctrl, _ := newTestController(t, gw)
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("my own idea"))

	err := ctrl.GenerateRandomScene(ctx)

	var gatewayErr *studio.GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	snap := ctrl.State()
	assert.Equal(t, "my own idea", snap.Scene)
	assert.NotEmpty(t, snap.LastError)
}

func TestStartOverResetsEverything(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	require.NoError(t, ctrl.SetScene("a scene"))
	require.NoError(t, ctrl.Design(ctx, "1:1"))

	ctrl.StartOver()

	snap := ctrl.State()
	assert.Equal(t, studio.StepPrepare, snap.Step)
	assert.True(t, snap.Original.IsZero())
	assert.True(t, snap.Prepared.IsZero())
	assert.True(t, snap.Final.IsZero())
	assert.Empty(t, snap.Scene)
	assert.Empty(t, snap.VideoPrompt)
	assert.False(t, snap.HasPrepared)
	assert.False(t, snap.Busy)
	assert.Empty(t, snap.LastError)
}

func TestBusyRejectsConcurrentActions(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		prepare: func(context.Context, string, string) (string, error) {
			close(entered)
			<-release
			return b64([]byte("prepared")), nil
		},
	}
	ctrl, _ := newTestController(t, gw)
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))

	done := make(chan error, 1)
	go func() { done <- ctrl.Prepare(ctx) }()
	<-entered

	assert.True(t, ctrl.State().Busy)
	assert.ErrorIs(t, ctrl.AdvanceToDesign(), studio.ErrBusy)
	assert.ErrorIs(t, ctrl.Prepare(ctx), studio.ErrBusy)
	assert.ErrorIs(t, ctrl.Upload(pngBytes), studio.ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, ctrl.State().Busy)
}

func TestStaleResponseDiscardedAfterStartOver(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		prepare: func(context.Context, string, string) (string, error) {
			close(entered)
			<-release
			return b64([]byte("late result")), nil
		},
	}
	ctrl, _ := newTestController(t, gw)
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))

	done := make(chan error, 1)
	go func() { done <- ctrl.Prepare(ctx) }()
	<-entered

	ctrl.StartOver()
	close(release)
	require.NoError(t, <-done)

	snap := ctrl.State()
	assert.Equal(t, studio.StepPrepare, snap.Step)
	assert.True(t, snap.Prepared.IsZero())
	assert.False(t, snap.HasPrepared)
	assert.False(t, snap.Busy)
}

func TestStaleResponseDiscardedAfterNewUpload(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		prepare: func(context.Context, string, string) (string, error) {
			close(entered)
			<-release
			return b64([]byte("late result")), nil
		},
	}
	ctrl, _ := newTestController(t, gw)
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))

	done := make(chan error, 1)
	go func() { done <- ctrl.Prepare(ctx) }()
	<-entered

	ctrl.StartOver()
	require.NoError(t, ctrl.Upload(jpegBytes))

	close(release)
	require.NoError(t, <-done)

	snap := ctrl.State()
	assert.Equal(t, b64(jpegBytes), snap.Prepared.Base64)
	assert.False(t, snap.HasPrepared)
}

func TestStepInvariants(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, ctrl.Upload(pngBytes))
	require.NoError(t, ctrl.AdvanceToDesign())
	snap := ctrl.State()
	require.Equal(t, studio.StepDesign, snap.Step)
	assert.False(t, snap.Prepared.IsZero())

	require.NoError(t, ctrl.SetScene("a scene"))
	require.NoError(t, ctrl.Design(ctx, "1:1"))
	snap = ctrl.State()
	require.Equal(t, studio.StepFinalize, snap.Step)
	assert.False(t, snap.Final.IsZero())
}
