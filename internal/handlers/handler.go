package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cgi-ad-studio/internal/session"
	"cgi-ad-studio/internal/studio"
	"cgi-ad-studio/internal/telegram"
)

type Options struct {
	Telegram *telegram.Client
	Sessions *session.Registry
	Logger   *slog.Logger
}

// Handler maps Telegram messages onto workflow intents. Each chat drives
// its own controller; the handler never touches workflow state directly.
type Handler struct {
	tg       *telegram.Client
	sessions *session.Registry
	logger   *slog.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:       opts.Telegram,
		sessions: opts.Sessions,
		logger:   logger,
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	ctrl := h.sessions.Get(chatID)

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, ctrl, msg)
	}
	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, ctrl, msg)
	}
	if msg.Text != "" {
		// Bare text in the design step is treated as the scene description.
		if ctrl.State().Step == studio.StepDesign {
			if err := ctrl.SetScene(msg.Text); err != nil {
				return h.replyError(chatID, err)
			}
			return h.tg.SendText(chatID, "Scene saved. Send /design <ratio> to generate the ad, or keep editing.")
		}
		return h.tg.SendText(chatID, "Send a product photo to begin, or /help for the commands.")
	}

	return nil
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, ctrl *studio.Controller, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]

	h.tg.SendTyping(chatID)
	data, err := h.tg.DownloadPhoto(ctx, photo.FileID)
	if err != nil {
		h.logger.Error("photo download failed", "err", err)
		return h.tg.SendText(chatID, "Could not download that photo, please try again.")
	}

	if err := ctrl.Upload(data); err != nil {
		return h.replyError(chatID, err)
	}

	return h.tg.SendText(chatID,
		"Product photo received.\n\n"+
			"/prepare - remove the background\n"+
			"/next - skip preparation and go to design")
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, ctrl *studio.Controller, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID, helpText)

	case "status":
		return h.tg.SendText(chatID, statusText(ctrl.State()))

	case "prepare":
		h.tg.SendTyping(chatID)
		_ = h.tg.SendText(chatID, "Preparing product...")
		if err := ctrl.Prepare(ctx); err != nil {
			return h.replyError(chatID, err)
		}
		snap := ctrl.State()
		if snap.Prepared.IsZero() {
			return nil // workflow was reset while the call was in flight
		}
		return h.tg.SendImage(chatID, snap.Prepared.Base64, snap.Prepared.MimeType,
			"Product prepared. Send /next to design the scene.")

	case "next":
		if err := ctrl.AdvanceToDesign(); err != nil {
			return h.replyError(chatID, err)
		}
		return h.tg.SendText(chatID,
			"Describe the scene for your ad (just type it), or:\n"+
				"/ideas - preset concepts\n"+
				"/random - let the model suggest one\n"+
				"/design <ratio> - generate ("+ratioList()+")")

	case "scene":
		if args == "" {
			return h.tg.SendText(chatID, "Usage: /scene <description>")
		}
		if err := ctrl.SetScene(args); err != nil {
			return h.replyError(chatID, err)
		}
		return h.tg.SendText(chatID, "Scene saved. Send /design <ratio> to generate the ad.")

	case "ideas":
		var b strings.Builder
		b.WriteString("Creative concepts (pick with /idea <number>):\n")
		for i, c := range studio.CreativeConcepts() {
			fmt.Fprintf(&b, "\n%d. %s\n%s\n", i+1, c.Title, c.Description)
		}
		return h.tg.SendText(chatID, b.String())

	case "idea":
		concepts := studio.CreativeConcepts()
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 || n > len(concepts) {
			return h.tg.SendText(chatID, fmt.Sprintf("Usage: /idea <1-%d>", len(concepts)))
		}
		if err := ctrl.SetScene(concepts[n-1].Description); err != nil {
			return h.replyError(chatID, err)
		}
		return h.tg.SendText(chatID, fmt.Sprintf("Using %q. Send /design <ratio> to generate the ad.", concepts[n-1].Title))

	case "random":
		h.tg.SendTyping(chatID)
		_ = h.tg.SendText(chatID, "Brainstorming ideas...")
		if err := ctrl.GenerateRandomScene(ctx); err != nil {
			return h.replyError(chatID, err)
		}
		snap := ctrl.State()
		if snap.Scene == "" {
			return nil
		}
		return h.tg.SendText(chatID, "Suggested scene:\n\n"+snap.Scene+"\n\nSend /design <ratio> to use it, or write your own.")

	case "design":
		ratio := args
		if ratio == "" {
			ratio = "1:1"
		}
		if !studio.ValidAspectRatio(ratio) {
			return h.tg.SendText(chatID, "Unknown ratio. Pick one of: "+ratioList())
		}
		h.tg.SendTyping(chatID)
		_ = h.tg.SendText(chatID, "Designing CGI ad...")
		if err := ctrl.Design(ctx, ratio); err != nil {
			return h.replyError(chatID, err)
		}
		snap := ctrl.State()
		if snap.Final.IsZero() {
			return nil
		}
		return h.tg.SendImage(chatID, snap.Final.Base64, snap.Final.MimeType,
			"Your CGI ad is ready!\n"+
				"/video - generate an animation prompt\n"+
				"/redesign - same product, new scene\n"+
				"/iterate - use this ad as the new source\n"+
				"/startover - reset everything")

	case "video":
		h.tg.SendTyping(chatID)
		_ = h.tg.SendText(chatID, "Writing video prompt...")
		if err := ctrl.GenerateVideoPrompt(ctx); err != nil {
			return h.replyError(chatID, err)
		}
		snap := ctrl.State()
		if snap.VideoPrompt == "" {
			return nil
		}
		return h.tg.SendText(chatID, "Video animation prompt:\n\n"+snap.VideoPrompt)

	case "redesign":
		if err := ctrl.RedesignFromPrepared(); err != nil {
			return h.replyError(chatID, err)
		}
		return h.tg.SendText(chatID, "Back to design. Edit the scene or pick a new ratio, then /design.")

	case "iterate":
		if err := ctrl.RedesignFromFinal(); err != nil {
			return h.replyError(chatID, err)
		}
		return h.tg.SendText(chatID, "The generated ad is now your source image. Describe a scene, then /design.")

	case "startover":
		ctrl.StartOver()
		return h.tg.SendText(chatID, "Workflow reset. Send a product photo to begin.")

	case "history":
		return h.handleHistory(chatID, ctrl, args)

	case "clearhistory":
		if !strings.EqualFold(args, "yes") {
			return h.tg.SendText(chatID,
				"This deletes all saved ads and cannot be undone.\nSend /clearhistory yes to confirm.")
		}
		ctrl.History().Clear()
		return h.tg.SendText(chatID, "History cleared.")

	default:
		return h.tg.SendText(chatID, "Unknown command. /help lists everything.")
	}
}

func (h *Handler) handleHistory(chatID int64, ctrl *studio.Controller, args string) error {
	entries := ctrl.History().Entries()
	if len(entries) == 0 {
		return h.tg.SendText(chatID, "No ads in history yet.")
	}

	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 || n > len(entries) {
			return h.tg.SendText(chatID, fmt.Sprintf("Usage: /history <1-%d>", len(entries)))
		}
		entry := entries[n-1]

		caption := fmt.Sprintf("Created: %s\nScene: %s", entry.Timestamp.Format("2006-01-02 15:04"), entry.SceneDescription)
		if mimeType, data, ok := splitDataURL(entry.FinalAd.URL); ok {
			if err := h.tg.SendImage(chatID, data, mimeType, caption); err != nil {
				return err
			}
		} else if err := h.tg.SendText(chatID, caption); err != nil {
			return err
		}

		if entry.VideoPrompt != "" {
			return h.tg.SendText(chatID, "Video animation prompt:\n\n"+entry.VideoPrompt)
		}
		return nil
	}

	var b strings.Builder
	b.WriteString("Project history (newest first, /history <number> for details):\n")
	for i, e := range entries {
		scene := e.SceneDescription
		if len(scene) > 80 {
			scene = scene[:80] + "..."
		}
		fmt.Fprintf(&b, "\n%d. %s | %s", i+1, e.Timestamp.Format("2006-01-02 15:04"), scene)
	}
	return h.tg.SendText(chatID, b.String())
}

func (h *Handler) replyError(chatID int64, err error) error {
	var precondition *studio.PreconditionError
	var decode *studio.DecodeError
	var gateway *studio.GatewayError

	switch {
	case errors.Is(err, studio.ErrBusy):
		return h.tg.SendText(chatID, "Still working on the previous step, one moment...")
	case errors.As(err, &decode):
		return h.tg.SendText(chatID, "That file does not look like an image. Please send a PNG, JPG or WEBP photo.")
	case errors.As(err, &precondition):
		return h.tg.SendText(chatID, "Not available right now: "+precondition.Reason+". /status shows where you are.")
	case errors.As(err, &gateway):
		h.logger.Error("generation failed", "err", err)
		return h.tg.SendText(chatID, "Generation failed: "+gateway.Err.Error()+"\nYou can retry the same command.")
	default:
		h.logger.Error("intent failed", "err", err)
		return h.tg.SendText(chatID, "Something went wrong, please try again.")
	}
}

const helpText = "AI CGI Ad Studio\n\n" +
	"Turn a product photo into a CGI advertisement:\n" +
	"1. Send a product photo\n" +
	"2. /prepare to remove the background (or /next to skip)\n" +
	"3. Describe a scene, then /design <ratio>\n" +
	"4. /video for an animation prompt\n\n" +
	"More: /status /ideas /idea N /random /scene <text> /redesign /iterate /startover /history /clearhistory"

func statusText(snap studio.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step: %s\n", snap.Step)
	if snap.Busy {
		b.WriteString("A generation call is in progress.\n")
	}
	if !snap.Original.IsZero() {
		b.WriteString("Product photo: uploaded\n")
	}
	if snap.HasPrepared {
		b.WriteString("Background: removed\n")
	}
	if snap.Scene != "" {
		fmt.Fprintf(&b, "Scene: %s\n", snap.Scene)
	}
	if !snap.Final.IsZero() {
		b.WriteString("Final ad: generated\n")
	}
	if snap.VideoPrompt != "" {
		b.WriteString("Video prompt: generated\n")
	}
	if snap.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", snap.LastError)
	}
	return strings.TrimRight(b.String(), "\n")
}

func ratioList() string {
	ratios := studio.AspectRatios()
	values := make([]string, 0, len(ratios))
	for _, r := range ratios {
		values = append(values, r.Value)
	}
	return strings.Join(values, ", ")
}

func splitDataURL(url string) (mimeType, base64Data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	meta, data, found := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !found {
		return "", "", false
	}
	mimeType = strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return mimeType, data, true
}
