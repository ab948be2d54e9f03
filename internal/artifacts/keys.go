package artifacts

import "strings"

// Category directory names under a project root.
const (
	CategoryVideo         = "video"
	CategoryAudio         = "audio"
	CategoryTranscription = "transcription"
	CategoryTitles        = "titles"
	CategoryThumbnails    = "thumbnails"
	CategoryMetadata      = "metadata"
)

// Categories lists every category directory created for a project.
var Categories = []string{
	CategoryVideo,
	CategoryAudio,
	CategoryTranscription,
	CategoryTitles,
	CategoryThumbnails,
	CategoryMetadata,
}

// Well-known artifact keys. The vocabulary is open: unknown keys are
// accepted and filed under metadata/, but these are the keys the pipeline
// itself produces, in declaration order.
const (
	KeyOriginalVideo      = "original_video"
	KeyIntroVideo         = "intro_video"
	KeyOutroVideo         = "outro_video"
	KeyMergedVideo        = "merged_video"
	KeyVideoNoAudio       = "video_no_audio"
	KeyOriginalAudio      = "original_audio"
	KeyCleanedAudio       = "cleaned_audio"
	KeyAuphonicAudio      = "auphonic_audio"
	KeyFinalAudio         = "final_audio"
	KeyRawTranscription   = "raw_transcription"
	KeyFixedTranscription = "fixed_transcription"
	KeyTimecodes          = "timecodes"
	KeyKeyMoments         = "key_moments"
	KeyTitlesList         = "titles_list"
	KeyTitlesCritique     = "titles_critique"
	KeySelectedTitle      = "selected_title"
	KeyThumbnail1         = "thumbnail_1"
	KeyThumbnail2         = "thumbnail_2"
	KeyThumbnail3         = "thumbnail_3"
	KeyThumbnail4         = "thumbnail_4"
	KeySelectedThumbnail  = "selected_thumbnail"
	KeyFinalVideo         = "final_video"
	KeyYouTubeMetadata    = "youtube_metadata"
)

// KeyOrder fixes the listing order for well-known keys. Keys outside this
// list sort after it, in the order they were first saved.
var KeyOrder = []string{
	KeyOriginalVideo,
	KeyIntroVideo,
	KeyOutroVideo,
	KeyMergedVideo,
	KeyVideoNoAudio,
	KeyOriginalAudio,
	KeyCleanedAudio,
	KeyAuphonicAudio,
	KeyFinalAudio,
	KeyRawTranscription,
	KeyFixedTranscription,
	KeyTimecodes,
	KeyKeyMoments,
	KeyTitlesList,
	KeyTitlesCritique,
	KeySelectedTitle,
	KeyThumbnail1,
	KeyThumbnail2,
	KeyThumbnail3,
	KeyThumbnail4,
	KeySelectedThumbnail,
	KeyFinalVideo,
	KeyYouTubeMetadata,
}

// KeyLabels maps well-known keys to human-readable names for display.
var KeyLabels = map[string]string{
	KeyOriginalVideo:      "Original video",
	KeyIntroVideo:         "Intro clip",
	KeyOutroVideo:         "Outro clip",
	KeyMergedVideo:        "Merged video",
	KeyVideoNoAudio:       "Video without audio",
	KeyOriginalAudio:      "Original audio",
	KeyCleanedAudio:       "Cleaned audio (AI)",
	KeyAuphonicAudio:      "Processed audio (Auphonic)",
	KeyFinalAudio:         "Final audio",
	KeyRawTranscription:   "Raw transcription",
	KeyFixedTranscription: "Corrected transcription",
	KeyTimecodes:          "Timecodes",
	KeyKeyMoments:         "Key moments",
	KeyTitlesList:         "Title candidates",
	KeyTitlesCritique:     "Title critique",
	KeySelectedTitle:      "Selected title",
	KeyThumbnail1:         "Thumbnail 1",
	KeyThumbnail2:         "Thumbnail 2",
	KeyThumbnail3:         "Thumbnail 3",
	KeyThumbnail4:         "Thumbnail 4",
	KeySelectedThumbnail:  "Selected thumbnail",
	KeyFinalVideo:         "Final video for upload",
	KeyYouTubeMetadata:    "YouTube metadata",
}

// categoryRules routes a key to its category directory. Rules are checked
// in order and the first matching substring wins; keys matching nothing are
// filed under metadata/ as the catch-all. Keeping the routing in one table
// keeps the on-disk layout auditable.
var categoryRules = []struct {
	substr   string
	category string
}{
	{"video", CategoryVideo},
	{"audio", CategoryAudio},
	{"transcription", CategoryTranscription},
	{"timecodes", CategoryTranscription},
	{"key_moments", CategoryTranscription},
	{"title", CategoryTitles},
	{"thumbnail", CategoryThumbnails},
}

// CategoryForKey returns the category directory name for an artifact key.
func CategoryForKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, rule := range categoryRules {
		if strings.Contains(k, rule.substr) {
			return rule.category
		}
	}
	return CategoryMetadata
}
