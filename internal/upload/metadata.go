package upload

import (
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// YouTube metadata limits.
const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 5000
	MaxTagsJoinedLen  = 500 // all tags joined with commas
)

// Privacy statuses accepted by the videos.insert API.
const (
	PrivacyPublic   = "public"
	PrivacyUnlisted = "unlisted"
	PrivacyPrivate  = "private"
)

// Categories maps display names to YouTube category IDs.
var Categories = map[string]string{
	"Film & Animation":      "1",
	"Autos & Vehicles":      "2",
	"Music":                 "10",
	"Pets & Animals":        "15",
	"Sports":                "17",
	"Travel & Events":       "19",
	"Gaming":                "20",
	"People & Blogs":        "22",
	"Comedy":                "23",
	"Entertainment":         "24",
	"News & Politics":       "25",
	"Howto & Style":         "26",
	"Education":             "27",
	"Science & Technology":  "28",
	"Nonprofits & Activism": "29",
}

// CategoryNames returns the known category display names, sorted.
func CategoryNames() []string {
	out := make([]string, 0, len(Categories))
	for name := range Categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Metadata is the publishable description of a video.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"category_id"`
	Privacy     string   `json:"privacy"`
}

// Validate enforces the API limits before any bytes are sent.
func (m Metadata) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required, validation.RuneLength(1, MaxTitleLen)),
		validation.Field(&m.Description, validation.RuneLength(0, MaxDescriptionLen)),
		validation.Field(&m.CategoryID, validation.Required),
		validation.Field(&m.Privacy, validation.Required,
			validation.In(PrivacyPublic, PrivacyUnlisted, PrivacyPrivate)),
	)
	if err != nil {
		return err
	}
	if joined := strings.Join(m.Tags, ","); len(joined) > MaxTagsJoinedLen {
		return fmt.Errorf("tags exceed %d characters when joined (%d)", MaxTagsJoinedLen, len(joined))
	}
	return nil
}
