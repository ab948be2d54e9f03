// Package transcribe is the cloud transcription processor. It wraps the
// Gemini generative language API: upload the audio file, wait for it to
// become active, then ask the model for a transcript. Post-processing
// (correction, timecodes, key moments) reuses the same text endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type Options struct {
	APIKey     string
	Model      string // default gemini-2.5-flash
	BaseURL    string // overridable for tests
	HTTPClient *http.Client
	PollEvery  time.Duration // file processing poll interval
	Progress   func(fraction float64, status string)
}

type Client struct {
	apiKey    string
	model     string
	baseURL   string
	httpc     *http.Client
	pollEvery time.Duration
	progress  func(float64, string)
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini API key is required (set GOOGLE_GEMINI_API_KEY)")
	}
	c := &Client{
		apiKey:    strings.TrimSpace(opts.APIKey),
		model:     strings.TrimSpace(opts.Model),
		baseURL:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpc:     opts.HTTPClient,
		pollEvery: opts.PollEvery,
		progress:  opts.Progress,
	}
	if c.model == "" {
		c.model = "gemini-2.5-flash"
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: 10 * time.Minute}
	}
	if c.pollEvery <= 0 {
		c.pollEvery = time.Second
	}
	return c, nil
}

// Transcribe uploads the audio file and returns the plain transcript text.
// language is optional; empty means auto-detect.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file %s: %w", audioPath, err)
	}

	c.report(0.1, "uploading audio")
	file, err := c.uploadFile(ctx, audioPath)
	if err != nil {
		return "", err
	}

	c.report(0.3, "waiting for file processing")
	file, err = c.waitForFile(ctx, file)
	if err != nil {
		return "", err
	}

	c.report(0.5, "transcribing")
	prompt := "Transcribe this audio verbatim. Output only the transcript text, no commentary."
	if language != "" {
		prompt += " The audio language is " + language + "."
	}
	text, err := c.generate(ctx, []part{
		{Text: prompt},
		{FileData: &fileData{MimeType: file.MimeType, FileURI: file.URI}},
	})
	if err != nil {
		return "", err
	}
	c.report(1.0, "done")
	return text, nil
}

// FixTranscription corrects punctuation and formatting without changing
// the wording.
func (c *Client) FixTranscription(ctx context.Context, raw string) (string, error) {
	prompt := "Fix punctuation, capitalization and paragraph breaks in this transcript. " +
		"Do not rephrase or summarize. Output only the corrected transcript.\n\n" + raw
	return c.generate(ctx, []part{{Text: prompt}})
}

// GenerateTimecodes produces a YouTube chapter list ("MM:SS Title" lines).
func (c *Client) GenerateTimecodes(ctx context.Context, transcript string) (string, error) {
	prompt := "From this transcript, produce YouTube chapter timecodes, one per line, " +
		"format \"MM:SS Chapter title\". Start with 00:00. Output only the list.\n\n" + transcript
	return c.generate(ctx, []part{{Text: prompt}})
}

// ExtractKeyMoments lists the strongest moments for teasers and shorts.
func (c *Client) ExtractKeyMoments(ctx context.Context, transcript string) (string, error) {
	prompt := "List the 5 most engaging moments of this transcript, one per line, " +
		"each with an approximate timestamp and a one-sentence description.\n\n" + transcript
	return c.generate(ctx, []part{{Text: prompt}})
}

type fileData struct {
	MimeType string `json:"mime_type,omitempty"`
	FileURI  string `json:"file_uri,omitempty"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type fileInfo struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

type fileEnvelope struct {
	File fileInfo `json:"file"`
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	var req generateRequest
	req.Contents = make([]struct {
		Parts []part `json:"parts"`
	}, 1)
	req.Contents[0].Parts = parts

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
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
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty transcript")
	}
	return text, nil
}

func (c *Client) uploadFile(ctx context.Context, path string) (fileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fileInfo{}, err
	}

	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return fileInfo{}, err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", mimeTypeForAudio(path))
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fileInfo{}, fmt.Errorf("upload audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fileInfo{}, fmt.Errorf("audio upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env fileEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fileInfo{}, fmt.Errorf("parse upload response: %w", err)
	}
	if env.File.URI == "" {
		return fileInfo{}, fmt.Errorf("upload response has no file URI")
	}
	return env.File, nil
}

func (c *Client) waitForFile(ctx context.Context, file fileInfo) (fileInfo, error) {
	for file.State == "PROCESSING" {
		select {
		case <-ctx.Done():
			return fileInfo{}, ctx.Err()
		case <-time.After(c.pollEvery):
		}

		url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, file.Name, c.apiKey)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fileInfo{}, err
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return fileInfo{}, fmt.Errorf("poll file state: %w", err)
		}
		var updated fileInfo
		err = json.NewDecoder(resp.Body).Decode(&updated)
		resp.Body.Close()
		if err != nil {
			return fileInfo{}, fmt.Errorf("parse file state: %w", err)
		}
		if updated.URI != "" {
			file = updated
		}
	}
	if file.State == "FAILED" {
		return fileInfo{}, fmt.Errorf("gemini failed to process the uploaded audio")
	}
	return file, nil
}

func (c *Client) report(fraction float64, status string) {
	if c.progress != nil {
		c.progress(fraction, status)
	}
}

func mimeTypeForAudio(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
