package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// IsEnglish reports whether the text reads as English. Review snippets too
// short to classify reliably are treated as not English rather than guessed.
func IsEnglish(text string) bool {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return false
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return false
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return false
	}
	return language == lingua.English
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
