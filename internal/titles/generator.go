// Package titles generates and critiques YouTube titles with the Gemini
// text API and applies local best-practice checks.
package titles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Title length guidelines (characters). YouTube truncates around 70; 60
// keeps the full title visible everywhere.
const (
	MaxLength         = 70
	RecommendedLength = 60
	MinLength         = 30
)

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
		g.model = "gemini-2.5-flash"
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
	Transcript  string
	Description string
	Keywords    []string
	Audience    string
	Count       int    // 1-10, default 5
	Style       string // engaging, professional, educational, viral
}

// Generate returns Count title candidates derived from the transcript or
// description.
func (g *Generator) Generate(ctx context.Context, opts GenerateOptions) ([]string, error) {
	if strings.TrimSpace(opts.Transcript) == "" && strings.TrimSpace(opts.Description) == "" {
		return nil, fmt.Errorf("either a transcript or a description is required")
	}
	count := opts.Count
	if count == 0 {
		count = 5
	}
	if count < 1 || count > 10 {
		return nil, fmt.Errorf("title count must be between 1 and 10, got %d", count)
	}

	text, err := g.call(ctx, buildGeneratePrompt(opts, count))
	if err != nil {
		return nil, err
	}
	out := ParseList(text, count)
	if len(out) == 0 {
		return nil, fmt.Errorf("no titles found in model response")
	}
	return out, nil
}

// Critique asks the model for detailed feedback on a single title.
func (g *Generator) Critique(ctx context.Context, title, transcript string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("title is required")
	}
	prompt := fmt.Sprintf(
		"Critique this YouTube title against best practices (length under %d characters, "+
			"front-loaded keywords, clear value, no clickbait): %q\n"+
			"Point out concrete improvements and suggest one rewritten version.",
		MaxLength, title)
	if strings.TrimSpace(transcript) != "" {
		prompt += "\n\nVideo transcript for context:\n" + transcript
	}
	return g.call(ctx, prompt)
}

// Lint applies the local guideline checks that need no API call.
func Lint(title string) []string {
	var warnings []string
	n := len([]rune(strings.TrimSpace(title)))
	switch {
	case n == 0:
		warnings = append(warnings, "title is empty")
	case n < MinLength:
		warnings = append(warnings, fmt.Sprintf("title is short (%d chars, aim for %d-%d)", n, MinLength, RecommendedLength))
	case n > MaxLength:
		warnings = append(warnings, fmt.Sprintf("title exceeds %d chars and will be truncated (%d)", MaxLength, n))
	case n > RecommendedLength:
		warnings = append(warnings, fmt.Sprintf("title is over the %d-char sweet spot (%d)", RecommendedLength, n))
	}
	if strings.ToUpper(title) == title && n > 0 {
		warnings = append(warnings, "all-caps titles read as clickbait")
	}
	return warnings
}

// Normalize trims and collapses whitespace and caps the title at the
// YouTube hard limit of 100 characters.
func Normalize(title string) string {
	out := strings.Join(strings.Fields(title), " ")
	if runes := []rune(out); len(runes) > 100 {
		out = strings.TrimSpace(string(runes[:100]))
	}
	return out
}

var titleCaser = cases.Title(language.English)

// TitleCase converts a candidate to English title case, used by the wizard
// when the user asks for it.
func TitleCase(title string) string {
	return titleCaser.String(Normalize(title))
}

// ParseList extracts up to count lines from a numbered or bulleted model
// response, stripping list markers and surrounding quotes.
func ParseList(text string, count int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•")
		line = strings.TrimSpace(line)
		// Strip "1." / "1)" numbering.
		if i := strings.IndexAny(line, ".)"); i > 0 && i <= 2 && isDigits(line[:i]) {
			line = strings.TrimSpace(line[i+1:])
		}
		line = strings.Trim(line, `"“”`)
		if line == "" {
			continue
		}
		out = append(out, Normalize(line))
		if len(out) == count {
			break
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func buildGeneratePrompt(opts GenerateOptions, count int) string {
	style := strings.TrimSpace(opts.Style)
	if style == "" {
		style = "engaging"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d YouTube title options in a %s style, one per line, numbered. ", count, style)
	fmt.Fprintf(&b, "Keep each under %d characters, front-load the key topic, avoid clickbait.\n", RecommendedLength)
	if opts.Audience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", opts.Audience)
	}
	if len(opts.Keywords) > 0 {
		fmt.Fprintf(&b, "Work in these keywords where natural: %s\n", strings.Join(opts.Keywords, ", "))
	}
	if opts.Description != "" {
		fmt.Fprintf(&b, "\nVideo description:\n%s\n", opts.Description)
	}
	if opts.Transcript != "" {
		fmt.Fprintf(&b, "\nVideo transcript:\n%s\n", opts.Transcript)
	}
	return b.String()
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (g *Generator) call(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse gemini response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("gemini API error %d: %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API returned status %d", resp.StatusCode)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
