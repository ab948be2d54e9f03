// Package config loads application settings: secrets from the environment
// (with .env support) and non-secret defaults from an optional
// settings.toml. The resulting Settings value is passed explicitly to each
// processor at construction; the artifact store and workflow machine take
// no configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Privacy values accepted by the uploader.
const (
	PrivacyPublic   = "public"
	PrivacyUnlisted = "unlisted"
	PrivacyPrivate  = "private"
)

// Audio cleanup presets.
const (
	PresetLight      = "light"
	PresetMedium     = "medium"
	PresetAggressive = "aggressive"
)

const (
	DefaultOutputRoot     = "output/projects"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultWhisperModel   = "base"
	DefaultWhisperDevice  = "cpu"
	DefaultUploadPrivacy  = PrivacyUnlisted
	DefaultUploadCategory = "22" // People & Blogs
	DefaultAudioPreset    = PresetMedium
	DefaultThumbnailStyle = "modern"
)

// Settings is the full runtime configuration.
type Settings struct {
	OutputRoot string

	GeminiAPIKey   string
	OpenAIAPIKey   string
	AuphonicAPIKey string

	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeRefreshToken string

	GeminiModel   string
	WhisperModel  string
	WhisperDevice string

	UploadPrivacy  string
	UploadCategory string
	AudioPreset    string
	ThumbnailStyle string
}

// fileSettings is the settings.toml schema. Secrets deliberately have no
// place here; they come from the environment only.
type fileSettings struct {
	Paths struct {
		OutputRoot string `toml:"output_root"`
	} `toml:"paths"`
	Defaults struct {
		GeminiModel    string `toml:"gemini_model"`
		WhisperModel   string `toml:"whisper_model"`
		WhisperDevice  string `toml:"whisper_device"`
		UploadPrivacy  string `toml:"upload_privacy"`
		UploadCategory string `toml:"upload_category"`
		AudioPreset    string `toml:"audio_preset"`
		ThumbnailStyle string `toml:"thumbnail_style"`
	} `toml:"defaults"`
}

// LoadOptions point Load at non-default file locations, mainly for tests.
type LoadOptions struct {
	EnvFile  string // default ".env", missing file is fine
	TOMLFile string // default "settings.toml", missing file is fine
}

// Load resolves settings with precedence: process environment over .env
// over settings.toml over built-in defaults.
func Load(opts LoadOptions) (Settings, error) {
	envFile := opts.EnvFile
	if strings.TrimSpace(envFile) == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables already set in the process.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	var file fileSettings
	tomlFile := opts.TOMLFile
	if strings.TrimSpace(tomlFile) == "" {
		tomlFile = "settings.toml"
	}
	if data, err := os.ReadFile(tomlFile); err == nil {
		if err := toml.Unmarshal(data, &file); err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", tomlFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("read %s: %w", tomlFile, err)
	}

	s := Settings{
		OutputRoot: firstNonEmpty(os.Getenv("VIDEO_STUDIO_OUTPUT_ROOT"), file.Paths.OutputRoot, DefaultOutputRoot),

		GeminiAPIKey:   os.Getenv("GOOGLE_GEMINI_API_KEY"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		AuphonicAPIKey: os.Getenv("AUPHONIC_API_KEY"),

		YouTubeClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeRefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),

		GeminiModel:   firstNonEmpty(os.Getenv("GEMINI_MODEL"), file.Defaults.GeminiModel, DefaultGeminiModel),
		WhisperModel:  firstNonEmpty(os.Getenv("WHISPER_MODEL"), file.Defaults.WhisperModel, DefaultWhisperModel),
		WhisperDevice: firstNonEmpty(os.Getenv("WHISPER_DEVICE"), file.Defaults.WhisperDevice, DefaultWhisperDevice),

		UploadPrivacy:  firstNonEmpty(os.Getenv("UPLOAD_PRIVACY"), file.Defaults.UploadPrivacy, DefaultUploadPrivacy),
		UploadCategory: firstNonEmpty(os.Getenv("UPLOAD_CATEGORY"), file.Defaults.UploadCategory, DefaultUploadCategory),
		AudioPreset:    firstNonEmpty(os.Getenv("AUDIO_PRESET"), file.Defaults.AudioPreset, DefaultAudioPreset),
		ThumbnailStyle: firstNonEmpty(os.Getenv("THUMBNAIL_STYLE"), file.Defaults.ThumbnailStyle, DefaultThumbnailStyle),
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the cross-cutting settings. Secrets are validated by the
// processor that needs them, not here, so a user without an Auphonic key
// can still run every other step.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.OutputRoot, validation.Required),
		validation.Field(&s.UploadPrivacy, validation.In(PrivacyPublic, PrivacyUnlisted, PrivacyPrivate)),
		validation.Field(&s.AudioPreset, validation.In(PresetLight, PresetMedium, PresetAggressive)),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
