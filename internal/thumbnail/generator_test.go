package thumbnail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFakeImageAPI(t *testing.T, image []byte) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req generateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			prompts = append(prompts, req.Contents[0].Parts[0].Text)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": content{Parts: []part{{
					InlineData: &inlineData{
						MimeType: "image/jpeg",
						Data:     base64.StdEncoding.EncodeToString(image),
					},
				}}}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestGenerateWritesVariations(t *testing.T) {
	image := []byte("fake-jpeg-bytes")
	srv, prompts := newFakeImageAPI(t, image)

	g, err := New(Options{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	var progress []string
	paths, err := g.Generate(context.Background(), GenerateOptions{
		Title:       "Home Studio Build",
		Description: "walkthrough of the setup",
		Count:       3,
		OutputDir:   dir,
		Progress: func(done, total int, msg string) {
			progress = append(progress, msg)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 {
		t.Fatalf("got %d paths, want 3", len(paths))
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != string(image) {
			t.Errorf("%s: wrong content", filepath.Base(p))
		}
		if filepath.Ext(p) != ".jpg" {
			t.Errorf("%s: want .jpg extension", p)
		}
	}
	// Default style rotation: modern, cinematic, vibrant.
	if len(*prompts) != 3 {
		t.Fatalf("got %d prompts, want 3", len(*prompts))
	}
	if !strings.Contains((*prompts)[0], StyleTemplates["modern"]) {
		t.Error("first prompt should use the modern style")
	}
	if !strings.Contains((*prompts)[1], StyleTemplates["cinematic"]) {
		t.Error("second prompt should use the cinematic style")
	}
	if !strings.Contains((*prompts)[0], "Home Studio Build") {
		t.Error("prompt should contain the title")
	}
	if len(progress) == 0 {
		t.Error("progress callback never invoked")
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	g, err := New(Options{APIKey: "test-key"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Generate(context.Background(), GenerateOptions{OutputDir: t.TempDir()}); err == nil {
		t.Fatal("expected error for missing title")
	}
	if _, err := g.Generate(context.Background(), GenerateOptions{Title: "t", Count: 5, OutputDir: t.TempDir()}); err == nil {
		t.Fatal("expected error for count over 4")
	}
	if _, err := g.Generate(context.Background(), GenerateOptions{Title: "t"}); err == nil {
		t.Fatal("expected error for missing output dir")
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 403, "message": "API key invalid"},
		})
	}))
	defer srv.Close()

	g, err := New(Options{APIKey: "bad-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = g.Generate(context.Background(), GenerateOptions{Title: "t", Count: 1, OutputDir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "API key invalid") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("My Title", strings.Repeat("d", 300), "dark", "neon sign")
	if !strings.Contains(p, `"My Title"`) {
		t.Error("prompt should quote the title")
	}
	if !strings.Contains(p, StyleTemplates["dark"]) {
		t.Error("prompt should expand the dark style")
	}
	if !strings.Contains(p, "1280x720") {
		t.Error("prompt should state the target size")
	}
	if !strings.Contains(p, "neon sign") {
		t.Error("prompt should carry custom elements")
	}
	if strings.Contains(p, strings.Repeat("d", 201)) {
		t.Error("description should be truncated to 200 chars")
	}

	// Unknown style names pass through verbatim.
	if p := BuildPrompt("t", "", "hand-drawn sketch", ""); !strings.Contains(p, "hand-drawn sketch") {
		t.Error("custom style should pass through")
	}
}

func TestStylesSorted(t *testing.T) {
	styles := Styles()
	if len(styles) != len(StyleTemplates) {
		t.Fatalf("got %d styles, want %d", len(styles), len(StyleTemplates))
	}
	for i := 1; i < len(styles); i++ {
		if styles[i-1] >= styles[i] {
			t.Fatalf("styles not sorted: %v", styles)
		}
	}
}
