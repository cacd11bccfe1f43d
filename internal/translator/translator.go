package translator

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/language"
)

var ErrTranslationFailed = errors.New("translation failed")

type Translation struct {
	TranslatedText     string
	DetectedSourceLang string
	Confidence         float64
}

type Provider interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (Translation, error)
}

type NoopProvider struct{}

func NewNoopProvider() Provider {
	return NoopProvider{}
}

func (NoopProvider) Translate(_ context.Context, text, sourceLang, _ string) (Translation, error) {
	return Translation{TranslatedText: text, DetectedSourceLang: sourceLang, Confidence: 1}, nil
}

// SameLanguage reports whether two BCP-47 codes name the same written language,
// that is the same base language in the same script. "en-US" and "en-GB" match;
// "zh-CN" and "zh-TW" do not. Codes that fail to parse only match themselves.
func SameLanguage(a, b string) bool {
	a = strings.ReplaceAll(strings.TrimSpace(a), "_", "-")
	b = strings.ReplaceAll(strings.TrimSpace(b), "_", "-")
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return a != "" && strings.EqualFold(a, b)
	}
	baseA, _ := ta.Base()
	baseB, _ := tb.Base()
	if baseA != baseB {
		return false
	}
	scriptA, _ := ta.Script()
	scriptB, _ := tb.Script()
	return scriptA == scriptB
}
