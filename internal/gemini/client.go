package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	modelImage = "gemini-2.5-flash-image"
	modelText  = "gemini-2.5-flash"
)

// ErrNoImage is returned when an image capability call succeeds at the HTTP
// level but the model returned no image part.
var ErrNoImage = errors.New("model did not return an image")

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements the four generation capabilities of the ad studio over
// the Gemini generateContent endpoint. Each call is a single
// request/response; no retries beyond the imageConfig compatibility
// fallback, no streaming.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

// PrepareImage isolates the product on a transparent background and returns
// the edited image as base64 PNG bytes.
func (c *Client) PrepareImage(ctx context.Context, imageBase64, mimeType string) (string, error) {
	const prompt = "Enhance the quality of this image, remove all imperfections and blemishes, " +
		"and make the background transparent. Keep only the main product, perfectly isolated. " +
		"The output must be a PNG with a transparent background. Do not change the product itself."

	return c.generateImage(ctx, prompt, imageBase64, mimeType, "")
}

// GenerateAd places the product into the described scene and returns the
// advertisement as base64 JPEG bytes. The aspect ratio is passed through to
// the model verbatim.
func (c *Client) GenerateAd(ctx context.Context, imageBase64, mimeType, scene, aspectRatio string) (string, error) {
	prompt := fmt.Sprintf("Using the provided product image (which has a transparent background), "+
		"create a stunning, photorealistic CGI advertisement. Place the product in the following scene: %q. "+
		"The final image should be high-impact with professional, dramatic lighting and shadows that match "+
		"the scene. The final image must have an aspect ratio of %s.", scene, aspectRatio)

	return c.generateImage(ctx, prompt, imageBase64, mimeType, aspectRatio)
}

// GenerateVideoPrompt writes a single-paragraph text-to-video prompt for
// animating the final ad.
func (c *Client) GenerateVideoPrompt(ctx context.Context, imageBase64, mimeType, scene string) (string, error) {
	prompt := fmt.Sprintf("You are a professional film director and sound designer. Based on the provided "+
		"CGI ad image and the original concept (%q), create a comprehensive text-to-video prompt for a "+
		"3-5 second, high-impact animation. The prompt must be a single, detailed paragraph covering three "+
		"elements: Visuals (a dynamic camera movement and any VFX like atmospheric particles or lens flares), "+
		"Action (what happens in the scene), and Sound Design (ambient environmental sounds, specific SFX "+
		"synced to the product's action, and a suggestion for the musical score).", scene)

	return c.generateText(ctx, prompt, imageBase64, mimeType)
}

// GenerateRandomScene suggests a single-paragraph scene concept for the
// provided product image.
func (c *Client) GenerateRandomScene(ctx context.Context, imageBase64, mimeType string) (string, error) {
	const prompt = "You are an award-winning creative director, famous for creating viral " +
		"\"Faux Out of Home\" CGI ads. Your goal is to generate a single, breathtaking, and hyper-realistic " +
		"scene for the provided product. First, analyze the provided product image to understand its category " +
		"and target audience. Then, generate a concept that is thematically relevant and visually stunning. " +
		"The concept must be cinematic and dynamic, placing a gigantic version of the product into a " +
		"real-world location in a surreal and awe-inspiring way. The output must be a single, compelling " +
		"paragraph ready for a CGI artist."

	return c.generateText(ctx, prompt, imageBase64, mimeType)
}

func (c *Client) generateImage(ctx context.Context, prompt, imageBase64, mimeType, aspectRatio string) (string, error) {
	req := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &blob{Data: imageBase64, MimeType: mimeType}},
				{Text: prompt},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	if aspectRatio != "" {
		req.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: aspectRatio}
	}

	resp, err := c.generateContent(ctx, modelImage, req)
	if err != nil && req.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		req.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, modelImage, req)
	}
	if err != nil {
		return "", err
	}
	if len(resp.Images) == 0 {
		return "", ErrNoImage
	}
	return resp.Images[0], nil
}

func (c *Client) generateText(ctx context.Context, prompt, imageBase64, mimeType string) (string, error) {
	req := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &blob{Data: imageBase64, MimeType: mimeType}},
				{Text: prompt},
			},
		}},
	}

	resp, err := c.generateContent(ctx, modelText, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("model returned an empty response")
	}
	return text, nil
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (result, error) {
	if c.httpClient == nil {
		return result{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return result{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return result{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return result{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return result{}, fmt.Errorf("gemini API %s: %s", httpResp.Status, strings.TrimSpace(string(rawBody)))
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return result{}, fmt.Errorf("decode response: %w", err)
	}

	return extractParts(decoded), nil
}

// result collects the text and inline image data of the first candidate.
type result struct {
	Text   string
	Images []string
}

func extractParts(resp generateContentResponse) result {
	if len(resp.Candidates) == 0 {
		return result{}
	}

	var out result
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			text.WriteString(p.Text)
		}
		if p.InlineData != nil && p.InlineData.Data != "" {
			out.Images = append(out.Images, p.InlineData.Data)
		}
	}
	out.Text = text.String()
	return out
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}
