package artifacts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Create(t.TempDir(), "demo")
	if err != nil {
		t.Fatalf("create store failed: %v", err)
	}
	return s
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateBuildsProjectTree(t *testing.T) {
	root := t.TempDir()
	s, err := Create(root, "My Demo Video!")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if s.ProjectName() != "My_Demo_Video" {
		t.Fatalf("sanitized name mismatch: %q", s.ProjectName())
	}
	for _, category := range Categories {
		if _, err := os.Stat(filepath.Join(s.Dir(), category)); err != nil {
			t.Fatalf("missing category dir %s: %v", category, err)
		}
	}
	var mf Manifest
	data, err := os.ReadFile(s.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &mf); err != nil {
		t.Fatalf("initial manifest not valid JSON: %v", err)
	}
	if mf.ProjectID != s.ProjectID() || len(mf.Artifacts) != 0 {
		t.Fatalf("initial manifest mismatch: %+v", mf)
	}
}

func TestSaveOverwriteKeepsLastContent(t *testing.T) {
	s := newTestStore(t)

	first := writeSource(t, "a.mp4", "first content")
	second := writeSource(t, "b.mp4", "second content, longer")

	if _, err := s.Save(KeyOriginalVideo, first, nil); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := s.Save(KeyOriginalVideo, second, nil); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	path, err := s.Get(KeyOriginalVideo)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second content, longer" {
		t.Fatalf("overwrite semantics violated: %q", data)
	}
}

func TestSaveSupersedesFileWithDifferentExtension(t *testing.T) {
	s := newTestStore(t)

	mp4 := writeSource(t, "v.mp4", "mp4 data")
	mkv := writeSource(t, "v.mkv", "mkv data")

	if _, err := s.Save(KeyOriginalVideo, mp4, nil); err != nil {
		t.Fatal(err)
	}
	oldPath, _ := s.Get(KeyOriginalVideo)
	if _, err := s.Save(KeyOriginalVideo, mkv, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("superseded file not removed: %s", oldPath)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("expected one live artifact, got %d", got)
	}
}

func TestSaveMissingSource(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save(KeyOriginalVideo, filepath.Join(t.TempDir(), "nope.mp4"), nil)
	if !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing, got %v", err)
	}
}

func TestGetDistinguishesUnknownFromMissingOnDisk(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get("never_saved"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}

	src := writeSource(t, "a.wav", "pcm")
	if _, err := s.Save(KeyCleanedAudio, src, nil); err != nil {
		t.Fatal(err)
	}
	path, err := s.Get(KeyCleanedAudio)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(KeyCleanedAudio); !errors.Is(err, ErrArtifactMissingOnDisk) {
		t.Fatalf("expected ErrArtifactMissingOnDisk, got %v", err)
	}
	if s.Has(KeyCleanedAudio) {
		t.Fatalf("has should be false when file is gone")
	}
}

func TestListReadsSizeLiveAndPreservesOrder(t *testing.T) {
	s := newTestStore(t)

	audio := writeSource(t, "clean.wav", "12345")
	video := writeSource(t, "raw.mp4", "vvv")

	// Saved audio first, but listing order follows the declared vocabulary.
	if _, err := s.Save(KeyCleanedAudio, audio, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(KeyOriginalVideo, video, nil); err != nil {
		t.Fatal(err)
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(list))
	}
	if list[0].Key != KeyOriginalVideo || list[1].Key != KeyCleanedAudio {
		t.Fatalf("order mismatch: %q then %q", list[0].Key, list[1].Key)
	}
	if list[1].Size != 5 {
		t.Fatalf("size mismatch: %d", list[1].Size)
	}

	// Out-of-band grow; the next list call must reflect the real size.
	path, _ := s.Get(KeyCleanedAudio)
	if err := os.WriteFile(path, []byte("1234567890"), 0o644); err != nil {
		t.Fatal(err)
	}
	list = s.List()
	if list[1].Size != 10 {
		t.Fatalf("live size not reflected: %d", list[1].Size)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	src := writeSource(t, "a.wav", "pcm")
	if _, err := s.Save(KeyCleanedAudio, src, map[string]any{"method": "builtin"}); err != nil {
		t.Fatal(err)
	}
	path, _ := s.Get(KeyCleanedAudio)

	if err := s.Delete(KeyCleanedAudio); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if s.Has(KeyCleanedAudio) {
		t.Fatalf("has after delete should be false")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("backing file not removed")
	}
	if err := s.Delete(KeyCleanedAudio); err != nil {
		t.Fatalf("delete of unknown key must be a no-op, got %v", err)
	}
	if err := s.Delete("never_saved"); err != nil {
		t.Fatalf("delete of never-saved key must be a no-op, got %v", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)

	src := writeSource(t, "a.wav", "pcm")
	meta := map[string]any{"method": "auphonic", "preset": "podcast"}
	if _, err := s.Save(KeyAuphonicAudio, src, meta); err != nil {
		t.Fatal(err)
	}

	got := s.Metadata(KeyAuphonicAudio)
	if got["method"] != "auphonic" || got["preset"] != "podcast" {
		t.Fatalf("metadata mismatch: %v", got)
	}
	if s.Metadata(KeyOriginalVideo) != nil {
		t.Fatalf("expected nil metadata for key without side file")
	}
}

func TestOpenResumesExistingProject(t *testing.T) {
	root := t.TempDir()
	s, err := Create(root, "resume")
	if err != nil {
		t.Fatal(err)
	}
	src := writeSource(t, "a.mp4", "vvv")
	if _, err := s.Save(KeyOriginalVideo, src, nil); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(s.Dir())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if reopened.ProjectID() != s.ProjectID() {
		t.Fatalf("project id mismatch after reopen")
	}
	if !reopened.Has(KeyOriginalVideo) {
		t.Fatalf("artifact lost after reopen")
	}
}

func TestSaveBytesFilesUnknownKeyUnderMetadata(t *testing.T) {
	s := newTestStore(t)

	a, err := s.SaveBytes("custom_notes", []byte("remember the intro"), ".txt", nil)
	if err != nil {
		t.Fatalf("save bytes failed: %v", err)
	}
	if a.Category != CategoryMetadata {
		t.Fatalf("unknown key should land in metadata/, got %s", a.Category)
	}
	if filepath.Base(filepath.Dir(a.Path)) != CategoryMetadata {
		t.Fatalf("path not under metadata/: %s", a.Path)
	}
}

func TestCategoryForKey(t *testing.T) {
	cases := map[string]string{
		KeyOriginalVideo:    CategoryVideo,
		KeyVideoNoAudio:     CategoryVideo, // video wins by rule order
		KeyCleanedAudio:     CategoryAudio,
		KeyRawTranscription: CategoryTranscription,
		KeyTimecodes:        CategoryTranscription,
		KeyKeyMoments:       CategoryTranscription,
		KeyTitlesList:       CategoryTitles,
		KeySelectedTitle:    CategoryTitles,
		KeyThumbnail2:       CategoryThumbnails,
		KeyYouTubeMetadata:  CategoryMetadata,
		"mystery_blob":      CategoryMetadata,
	}
	for key, want := range cases {
		if got := CategoryForKey(key); got != want {
			t.Fatalf("category for %s: got %s want %s", key, got, want)
		}
	}
}

func TestSanitizeProjectName(t *testing.T) {
	cases := map[string]string{
		"My Demo Video!":     "My_Demo_Video",
		"  hello -- world  ": "hello_world",
		"ужин с друзьями":    "ужин_с_друзьями",
		"a*b(c)":             "abc",
	}
	for in, want := range cases {
		if got := SanitizeProjectName(in); got != want {
			t.Fatalf("sanitize %q: got %q want %q", in, got, want)
		}
	}
}
