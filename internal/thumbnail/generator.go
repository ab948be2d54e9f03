// Package thumbnail generates YouTube thumbnail candidates with the Gemini
// image model.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Thumbnails target the standard 16:9 YouTube size.
const (
	Width  = 1280
	Height = 720
)

// StyleTemplates maps a style name to the prompt fragment describing it.
// A style string not present here is passed through as a custom description.
var StyleTemplates = map[string]string{
	"modern":       "modern minimalist design with bold typography, clean lines, high contrast",
	"cinematic":    "cinematic movie poster style, dramatic lighting, epic composition",
	"vibrant":      "vibrant colorful aesthetic, energetic vibe, eye-catching elements",
	"professional": "professional business style, clean layout, corporate colors",
	"creative":     "creative artistic design, unique visual elements, expressive colors",
	"dark":         "dark moody atmosphere, dramatic shadows, mysterious vibe",
	"bright":       "bright cheerful design, warm colors, inviting atmosphere",
	"tech":         "futuristic tech style, neon accents, digital elements",
}

// defaultStyles is the rotation used when the caller does not pick styles.
var defaultStyles = []string{"modern", "cinematic", "vibrant", "creative"}

// Styles returns the available style names, sorted.
func Styles() []string {
	out := make([]string, 0, len(StyleTemplates))
	for name := range StyleTemplates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string // overridable for tests
	HTTPClient *http.Client
}

type Generator struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client
}

func New(opts Options) (*Generator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini API key is required (set GOOGLE_GEMINI_API_KEY)")
	}
	g := &Generator{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   strings.TrimSpace(opts.Model),
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpc:   opts.HTTPClient,
	}
	if g.model == "" {
		g.model = "gemini-2.5-flash-image"
	}
	if g.baseURL == "" {
		g.baseURL = defaultBaseURL
	}
	if g.httpc == nil {
		g.httpc = &http.Client{Timeout: 2 * time.Minute}
	}
	return g, nil
}

type GenerateOptions struct {
	Title       string
	Description string
	Count       int      // 1-4, default 4
	Styles      []string // style per variation, default rotation when empty
	Elements    string   // extra prompt elements
	OutputDir   string
	Progress    func(done, total int, message string)
}

// Generate renders Count thumbnail variations into OutputDir and returns
// the written file paths, one per variation, in order.
func (g *Generator) Generate(ctx context.Context, opts GenerateOptions) ([]string, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	count := opts.Count
	if count == 0 {
		count = 4
	}
	if count < 1 || count > 4 {
		return nil, fmt.Errorf("variation count must be between 1 and 4, got %d", count)
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	styles := opts.Styles
	if len(styles) == 0 {
		styles = defaultStyles
	}

	stamp := time.Now().Format("20060102_150405")
	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		style := styles[i%len(styles)]
		if opts.Progress != nil {
			opts.Progress(i, count, fmt.Sprintf("generating %s thumbnail %d/%d", style, i+1, count))
		}
		data, err := g.render(ctx, BuildPrompt(opts.Title, opts.Description, style, opts.Elements))
		if err != nil {
			return paths, fmt.Errorf("thumbnail %d/%d (%s): %w", i+1, count, style, err)
		}
		name := fmt.Sprintf("thumbnail_%s_%02d.jpg", stamp, i+1)
		path := filepath.Join(opts.OutputDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", name, err)
		}
		paths = append(paths, path)
		if opts.Progress != nil {
			opts.Progress(i+1, count, "saved "+name)
		}
	}
	return paths, nil
}

// BuildPrompt assembles the image prompt for one variation. An unknown style
// name is used verbatim as the style description.
func BuildPrompt(title, description, style, elements string) string {
	styleDesc, ok := StyleTemplates[style]
	if !ok {
		styleDesc = style
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Create a YouTube thumbnail image for a video titled: %q\n", title)
	if description != "" {
		if runes := []rune(description); len(runes) > 200 {
			description = string(runes[:200])
		}
		fmt.Fprintf(&b, "Video context: %s\n", description)
	}
	fmt.Fprintf(&b, "Visual style: %s\n", styleDesc)
	fmt.Fprintf(&b, "Requirements:\n")
	fmt.Fprintf(&b, "- %dx%d pixels (16:9 aspect ratio)\n", Width, Height)
	b.WriteString("- Bold, readable text for the title\n")
	b.WriteString("- Eye-catching visual composition\n")
	b.WriteString("- Professional quality\n")
	b.WriteString("- No watermarks or logos")
	if elements != "" {
		fmt.Fprintf(&b, "\nAdditional elements: %s", elements)
	}
	return b.String()
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content `json:"contents"`
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// render calls the image model once and returns the decoded JPEG bytes.
func (g *Generator) render(ctx context.Context, prompt string) ([]byte, error) {
	req := generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}
	req.GenerationConfig.Temperature = 0.7
	req.GenerationConfig.ResponseMimeType = "image/jpeg"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("gemini API error %d: %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini API returned status %d", resp.StatusCode)
	}
	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				img, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("decode image data: %w", err)
				}
				return img, nil
			}
		}
	}
	return nil, fmt.Errorf("no image data in gemini response")
}
