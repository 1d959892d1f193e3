package locale

import "testing"

func TestSpeechTagMapping(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"en", "en-US"},
		{"hi", "hi-IN"},
		{"kn", "kn-IN"},
		{"ta", "ta-IN"},
		{"te", "te-IN"},
		{"bn", "bn-IN"},
		{"ml", "ml-IN"},
		{"ur", "ur-PK"},
		{"fr", "en-US"}, // unmapped falls back to default
		{"", "en-US"},
	}
	for _, tt := range tests {
		if got := SpeechTag(tt.code); got != tt.want {
			t.Errorf("SpeechTag(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestLanguageName(t *testing.T) {
	if got := LanguageName("kn"); got != "Kannada" {
		t.Errorf("LanguageName(kn) = %q, want Kannada", got)
	}
	if got := LanguageName("xx"); got != "English" {
		t.Errorf("LanguageName(xx) = %q, want English fallback", got)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("ta"); got != "ta" {
		t.Errorf("Normalize(ta) = %q", got)
	}
	if got := Normalize("de"); got != "en" {
		t.Errorf("Normalize(de) = %q, want en", got)
	}
}
