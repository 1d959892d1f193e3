// Package locale maps application locale codes to the language names used in
// advisory prompts and the region-qualified speech tags used by the voice
// layer. The set of locales is closed; anything else falls back to English.
package locale

// Default is the locale assumed when none is supplied.
const Default = "en"

type entry struct {
	name      string // English name of the language, for prompt instructions
	speechTag string // BCP-47 tag understood by speech engines
}

var entries = map[string]entry{
	"en": {"English", "en-US"},
	"hi": {"Hindi", "hi-IN"},
	"kn": {"Kannada", "kn-IN"},
	"ta": {"Tamil", "ta-IN"},
	"te": {"Telugu", "te-IN"},
	"bn": {"Bengali", "bn-IN"},
	"ml": {"Malayalam", "ml-IN"},
	"ur": {"Urdu", "ur-PK"},
}

// Known reports whether code is one of the supported locales.
func Known(code string) bool {
	_, ok := entries[code]
	return ok
}

// LanguageName returns the English name of the locale's language, used in
// "Respond in X" prompt instructions. Unknown codes map to English.
func LanguageName(code string) string {
	if e, ok := entries[code]; ok {
		return e.name
	}
	return entries[Default].name
}

// SpeechTag returns the region-qualified speech tag for the locale.
// Unknown codes map to the default tag.
func SpeechTag(code string) string {
	if e, ok := entries[code]; ok {
		return e.speechTag
	}
	return entries[Default].speechTag
}

// Normalize returns code if it is a known locale, Default otherwise.
func Normalize(code string) string {
	if Known(code) {
		return code
	}
	return Default
}
