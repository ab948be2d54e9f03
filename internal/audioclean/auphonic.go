package audioclean

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultAuphonicURL = "https://auphonic.com/api"

// Auphonic production statuses we care about.
const (
	auphonicStatusDone  = 3
	auphonicStatusError = 2
)

// AuphonicPresets selects which algorithms a production enables.
var AuphonicPresets = map[string]map[string]bool{
	"podcast": {"denoise": true, "normloudness": true, "leveler": true, "filtering": true},
	"video":   {"denoise": true, "normloudness": true, "leveler": true, "filtering": true},
	"speech":  {"denoise": true, "normloudness": true, "filtering": true, "hipfilter": true},
}

type AuphonicOptions struct {
	APIKey     string
	BaseURL    string // overridable for tests
	HTTPClient *http.Client
	PollEvery  time.Duration
	Progress   func(fraction float64, status string)
}

// Auphonic is a client for the Auphonic production API: create a
// production with an uploaded file, poll until done, download the result.
type Auphonic struct {
	apiKey    string
	baseURL   string
	httpc     *http.Client
	pollEvery time.Duration
	progress  func(float64, string)
}

func NewAuphonic(opts AuphonicOptions) (*Auphonic, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("auphonic API key is required (set AUPHONIC_API_KEY)")
	}
	a := &Auphonic{
		apiKey:    strings.TrimSpace(opts.APIKey),
		baseURL:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpc:     opts.HTTPClient,
		pollEvery: opts.PollEvery,
		progress:  opts.Progress,
	}
	if a.baseURL == "" {
		a.baseURL = defaultAuphonicURL
	}
	if a.httpc == nil {
		a.httpc = &http.Client{Timeout: 15 * time.Minute}
	}
	if a.pollEvery <= 0 {
		a.pollEvery = 2 * time.Second
	}
	return a, nil
}

type production struct {
	UUID         string `json:"uuid"`
	Status       int    `json:"status"`
	StatusString string `json:"status_string"`
	ErrorMessage string `json:"error_message"`
	OutputFiles  []struct {
		DownloadURL string `json:"download_url"`
	} `json:"output_files"`
}

type productionEnvelope struct {
	StatusCode int        `json:"status_code"`
	Data       production `json:"data"`
	ErrorMsg   string     `json:"error_message"`
}

// auphonicAliases maps the builtin cleanup vocabulary onto the closest
// Auphonic algorithm set, so one preset flag drives either method.
var auphonicAliases = map[string]string{
	"light":      "speech",
	"medium":     "video",
	"aggressive": "podcast",
}

// Clean uploads the input, runs a production with the preset's algorithms,
// and writes the processed audio to outputPath. Besides the Auphonic names,
// the builtin preset names are accepted; an empty preset means "video".
func (a *Auphonic) Clean(ctx context.Context, inputPath, outputPath, preset string) error {
	name := strings.ToLower(strings.TrimSpace(preset))
	if name == "" {
		name = "video"
	}
	if alias, ok := auphonicAliases[name]; ok {
		name = alias
	}
	algorithms, ok := AuphonicPresets[name]
	if !ok {
		return fmt.Errorf("unknown auphonic preset %q", preset)
	}

	a.report(0.1, "creating production")
	prod, err := a.createProduction(ctx, inputPath, algorithms)
	if err != nil {
		return err
	}

	a.report(0.4, "processing")
	prod, err = a.waitForProduction(ctx, prod.UUID)
	if err != nil {
		return err
	}
	if len(prod.OutputFiles) == 0 || prod.OutputFiles[0].DownloadURL == "" {
		return fmt.Errorf("auphonic production %s finished without output files", prod.UUID)
	}

	a.report(0.8, "downloading result")
	if err := a.download(ctx, prod.OutputFiles[0].DownloadURL, outputPath); err != nil {
		return err
	}
	a.report(1.0, "done")
	return nil
}

func (a *Auphonic) createProduction(ctx context.Context, inputPath string, algorithms map[string]bool) (production, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return production{}, fmt.Errorf("open input %s: %w", inputPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	algoJSON, err := json.Marshal(algorithms)
	if err != nil {
		return production{}, err
	}
	if err := mw.WriteField("algorithms", string(algoJSON)); err != nil {
		return production{}, err
	}
	if err := mw.WriteField("action", "start"); err != nil {
		return production{}, err
	}
	if err := mw.WriteField("output_basename", "cleaned"); err != nil {
		return production{}, err
	}
	fw, err := mw.CreateFormFile("input_file", filepath.Base(inputPath))
	if err != nil {
		return production{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return production{}, fmt.Errorf("buffer input for upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return production{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/simple/productions.json", &body)
	if err != nil {
		return production{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	env, err := a.do(req)
	if err != nil {
		return production{}, fmt.Errorf("create auphonic production: %w", err)
	}
	if env.Data.UUID == "" {
		return production{}, fmt.Errorf("auphonic did not return a production uuid")
	}
	return env.Data, nil
}

func (a *Auphonic) waitForProduction(ctx context.Context, uuid string) (production, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/production/"+uuid+".json", nil)
		if err != nil {
			return production{}, err
		}
		req.Header.Set("Authorization", "Bearer "+a.apiKey)

		env, err := a.do(req)
		if err != nil {
			return production{}, fmt.Errorf("poll auphonic production %s: %w", uuid, err)
		}
		switch env.Data.Status {
		case auphonicStatusDone:
			return env.Data, nil
		case auphonicStatusError:
			msg := env.Data.ErrorMessage
			if msg == "" {
				msg = env.Data.StatusString
			}
			return production{}, fmt.Errorf("auphonic production %s failed: %s", uuid, msg)
		}

		select {
		case <-ctx.Done():
			return production{}, ctx.Err()
		case <-time.After(a.pollEvery):
		}
	}
}

func (a *Auphonic) download(ctx context.Context, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("download cleaned audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cleaned audio download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output %s: %w", outputPath, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(outputPath)
		return fmt.Errorf("write cleaned audio: %w", err)
	}
	return out.Close()
}

func (a *Auphonic) do(req *http.Request) (productionEnvelope, error) {
	resp, err := a.httpc.Do(req)
	if err != nil {
		return productionEnvelope{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return productionEnvelope{}, err
	}
	var env productionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return productionEnvelope{}, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		msg := env.ErrorMsg
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return productionEnvelope{}, fmt.Errorf("auphonic returned status %d: %s", resp.StatusCode, msg)
	}
	return env, nil
}

func (a *Auphonic) report(fraction float64, status string) {
	if a.progress != nil {
		a.progress(fraction, status)
	}
}
