package studio

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"cgi-ad-studio/internal/history"
)

const (
	preparedMimeType = "image/png"
	finalAdMimeType  = "image/jpeg"
)

// Gateway is the generation backend the controller drives. Each call is a
// single request/response; failures come back as ordinary errors.
type Gateway interface {
	// PrepareImage isolates the product and returns PNG bytes as base64.
	PrepareImage(ctx context.Context, imageBase64, mimeType string) (string, error)
	// GenerateAd places the product into the scene and returns JPEG bytes
	// as base64.
	GenerateAd(ctx context.Context, imageBase64, mimeType, scene, aspectRatio string) (string, error)
	// GenerateVideoPrompt writes a text-to-video prompt for the final ad.
	GenerateVideoPrompt(ctx context.Context, imageBase64, mimeType, scene string) (string, error)
	// GenerateRandomScene suggests a scene description for the product.
	GenerateRandomScene(ctx context.Context, imageBase64, mimeType string) (string, error)
}

type Options struct {
	Gateway Gateway
	History *history.Manager
	Logger  *slog.Logger
}

// Controller owns the workflow state for one studio session and is the only
// thing that mutates it. All transitions are serialized: while a gateway
// call is outstanding the controller is busy and rejects every other
// mutating action except StartOver.
type Controller struct {
	gateway Gateway
	history *history.Manager
	logger  *slog.Logger

	mu          sync.Mutex
	step        Step
	original    Artifact
	prepared    Artifact
	final       Artifact
	finalID     string
	scene       string
	frozenScene string
	videoPrompt string
	hasPrepared bool
	lastError   string
	busy        bool
	epoch       uint64
}

func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Controller{
		gateway: opts.Gateway,
		history: opts.History,
		logger:  logger,
		step:    StepPrepare,
	}
}

// State returns a snapshot of the current workflow state. Always available,
// including while a gateway call is outstanding.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Step:        c.step,
		Original:    c.original,
		Prepared:    c.prepared,
		Final:       c.final,
		Scene:       c.scene,
		VideoPrompt: c.videoPrompt,
		HasPrepared: c.hasPrepared,
		Busy:        c.busy,
		LastError:   c.lastError,
	}
}

// History exposes the controller's history manager to the presentation
// layer for read, select and clear intents.
func (c *Controller) History() *history.Manager {
	return c.history
}

// Upload decodes raw file bytes into the original artifact and seeds the
// prepared slot with the same image, so a background-free upload can skip
// the prepare call. Starts a fresh artifact lineage.
func (c *Controller) Upload(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrBusy
	}
	if c.step != StepPrepare {
		return &PreconditionError{Action: "upload", Reason: "only valid in the prepare step"}
	}

	mimeType, err := sniffImageMime(data)
	if err != nil {
		c.lastError = err.Error()
		return err
	}

	artifact := Artifact{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
	c.original = artifact
	c.prepared = artifact
	c.hasPrepared = false
	c.lastError = ""
	c.epoch++
	return nil
}

// Prepare asks the gateway to isolate the product. May be called again to
// re-prepare; the previous prepared artifact is overwritten.
func (c *Controller) Prepare(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.step != StepPrepare {
		c.mu.Unlock()
		return &PreconditionError{Action: "prepare", Reason: "only valid in the prepare step"}
	}
	if c.original.IsZero() {
		c.mu.Unlock()
		return &PreconditionError{Action: "prepare", Reason: "no image uploaded"}
	}
	src := c.original
	epoch := c.epoch
	c.busy = true
	c.mu.Unlock()

	result, err := c.gateway.PrepareImage(ctx, src.Base64, src.MimeType)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.logger.Debug("discarding stale prepare result")
		return nil
	}
	c.busy = false
	if err != nil {
		c.lastError = err.Error()
		return &GatewayError{Op: "prepare image", Err: err}
	}
	c.prepared = Artifact{Base64: result, MimeType: preparedMimeType}
	c.hasPrepared = true
	c.lastError = ""
	return nil
}

// AdvanceToDesign moves to the design step. Pure transition.
func (c *Controller) AdvanceToDesign() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrBusy
	}
	if c.step != StepPrepare {
		return &PreconditionError{Action: "advance", Reason: "only valid in the prepare step"}
	}
	if c.prepared.IsZero() {
		return &PreconditionError{Action: "advance", Reason: "no prepared image"}
	}
	c.step = StepDesign
	return nil
}

// SetScene replaces the working scene description. The text is validated at
// design time, not here.
func (c *Controller) SetScene(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrBusy
	}
	if c.step != StepDesign {
		return &PreconditionError{Action: "set scene", Reason: "only valid in the design step"}
	}
	c.scene = text
	return nil
}

// GenerateRandomScene asks the gateway for a scene suggestion and replaces
// the working scene with the trimmed result.
func (c *Controller) GenerateRandomScene(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.step != StepDesign {
		c.mu.Unlock()
		return &PreconditionError{Action: "random scene", Reason: "only valid in the design step"}
	}
	if c.prepared.IsZero() {
		c.mu.Unlock()
		return &PreconditionError{Action: "random scene", Reason: "no prepared image"}
	}
	src := c.prepared
	epoch := c.epoch
	c.busy = true
	c.mu.Unlock()

	result, err := c.gateway.GenerateRandomScene(ctx, src.Base64, src.MimeType)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.logger.Debug("discarding stale scene suggestion")
		return nil
	}
	c.busy = false
	if err != nil {
		c.lastError = err.Error()
		return &GatewayError{Op: "generate scene", Err: err}
	}
	c.scene = strings.TrimSpace(result)
	c.lastError = ""
	return nil
}

// Design generates the final ad from the prepared image and the current
// scene, freezing the scene text as the provenance for the video prompt and
// the history entry. On success the workflow moves to the finalize step.
func (c *Controller) Design(ctx context.Context, aspectRatio string) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.step != StepDesign {
		c.mu.Unlock()
		return &PreconditionError{Action: "design", Reason: "only valid in the design step"}
	}
	if c.prepared.IsZero() {
		c.mu.Unlock()
		return &PreconditionError{Action: "design", Reason: "no prepared image"}
	}
	scene := strings.TrimSpace(c.scene)
	if scene == "" {
		c.mu.Unlock()
		return &PreconditionError{Action: "design", Reason: "scene description is empty"}
	}
	if !ValidAspectRatio(aspectRatio) {
		c.mu.Unlock()
		return &PreconditionError{Action: "design", Reason: "unknown aspect ratio " + aspectRatio}
	}
	src := c.prepared
	epoch := c.epoch
	c.busy = true
	c.mu.Unlock()

	result, err := c.gateway.GenerateAd(ctx, src.Base64, src.MimeType, scene, aspectRatio)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.logger.Debug("discarding stale ad result")
		return nil
	}
	c.busy = false
	if err != nil {
		c.lastError = err.Error()
		return &GatewayError{Op: "generate ad", Err: err}
	}

	c.final = Artifact{Base64: result, MimeType: finalAdMimeType}
	c.frozenScene = scene
	c.videoPrompt = ""
	c.lastError = ""
	c.step = StepFinalize

	entry := c.history.Append(history.NewEntry{
		FinalAdURL:       c.final.DataURL(),
		SceneDescription: scene,
	})
	c.finalID = entry.ID
	return nil
}

// GenerateVideoPrompt writes an animation prompt for the final ad using the
// scene text frozen at design time, then amends the matching history entry.
func (c *Controller) GenerateVideoPrompt(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.step != StepFinalize {
		c.mu.Unlock()
		return &PreconditionError{Action: "video prompt", Reason: "only valid in the finalize step"}
	}
	if c.final.IsZero() {
		c.mu.Unlock()
		return &PreconditionError{Action: "video prompt", Reason: "no final ad"}
	}
	src := c.final
	scene := c.frozenScene
	entryID := c.finalID
	epoch := c.epoch
	c.busy = true
	c.mu.Unlock()

	result, err := c.gateway.GenerateVideoPrompt(ctx, src.Base64, src.MimeType, scene)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.logger.Debug("discarding stale video prompt")
		return nil
	}
	c.busy = false
	if err != nil {
		c.lastError = err.Error()
		return &GatewayError{Op: "generate video prompt", Err: err}
	}

	prompt := strings.TrimSpace(result)
	c.videoPrompt = prompt
	c.lastError = ""
	c.history.Update(entryID, prompt)
	return nil
}

// RedesignFromPrepared returns to the design step keeping the prepared
// image and the working scene, so the user can revise scene or aspect.
func (c *Controller) RedesignFromPrepared() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrBusy
	}
	if c.step != StepFinalize {
		return &PreconditionError{Action: "redesign", Reason: "only valid in the finalize step"}
	}
	c.final = Artifact{}
	c.finalID = ""
	c.videoPrompt = ""
	c.step = StepDesign
	return nil
}

// RedesignFromFinal seeds the prepared slot with the just-generated ad and
// returns to the design step, treating the ad as the new source material.
func (c *Controller) RedesignFromFinal() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrBusy
	}
	if c.step != StepFinalize {
		return &PreconditionError{Action: "iterate", Reason: "only valid in the finalize step"}
	}
	if c.final.IsZero() {
		return &PreconditionError{Action: "iterate", Reason: "no final ad"}
	}
	c.prepared = c.final
	c.hasPrepared = true
	c.final = Artifact{}
	c.finalID = ""
	c.videoPrompt = ""
	c.step = StepDesign
	return nil
}

// StartOver wipes the workflow back to an empty prepare step. Valid in any
// state, including while a gateway call is outstanding; the eventual result
// of that call is discarded.
func (c *Controller) StartOver() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.step = StepPrepare
	c.original = Artifact{}
	c.prepared = Artifact{}
	c.final = Artifact{}
	c.finalID = ""
	c.scene = ""
	c.frozenScene = ""
	c.videoPrompt = ""
	c.hasPrepared = false
	c.lastError = ""
	c.busy = false
	c.epoch++
}

func sniffImageMime(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &DecodeError{Reason: "empty file"}
	}
	mimeType := http.DetectContentType(data)
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", &DecodeError{Reason: "not an image: " + mimeType}
	}
	return mimeType, nil
}
