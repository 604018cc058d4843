package report

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"example.com/siwegate/internal/siwe"
)

// Language is a report locale.
type Language string

const (
	LangEnglish Language = "en"
	LangTurkish Language = "tr"
)

var ErrUnsupportedLanguage = errors.New("report: unsupported language")

//go:embed en.json tr.json
var localeFS embed.FS

// labels holds one decoded locale file per language. English is complete;
// other locales fall back to it key by key.
var labels = map[Language]map[string]string{}

var (
	supported = []language.Tag{language.English, language.Turkish}
	matcher   = language.NewMatcher(supported)
)

func init() {
	for _, lang := range []Language{LangEnglish, LangTurkish} {
		data, err := localeFS.ReadFile(string(lang) + ".json")
		if err != nil {
			panic(fmt.Sprintf("report: locale %s: %v", lang, err))
		}
		m := make(map[string]string)
		if err := json.Unmarshal(data, &m); err != nil {
			panic(fmt.Sprintf("report: locale %s: %v", lang, err))
		}
		labels[lang] = m
	}
}

// Translator looks up report labels for one language.
type Translator struct {
	lang Language
}

// NewTranslator returns a translator for lang, or English when lang has no locale.
func NewTranslator(lang Language) Translator {
	if _, ok := labels[lang]; !ok {
		lang = LangEnglish
	}
	return Translator{lang: lang}
}

func (t Translator) Lang() Language { return t.lang }

// T returns the label for key. Unknown keys are returned unchanged.
func (t Translator) T(key string) string {
	if v, ok := labels[t.lang][key]; ok {
		return v
	}
	if v, ok := labels[LangEnglish][key]; ok {
		return v
	}
	return key
}

func (t Translator) Format(key string, args ...any) string {
	return fmt.Sprintf(t.T(key), args...)
}

// Severity labels a diagnostic severity, keeping the raw value when the
// locale has no entry for it.
func (t Translator) Severity(s siwe.Severity) string {
	return t.label("severity."+string(s), string(s))
}

// Kind labels a diagnostic type (format, security, compliance).
func (t Translator) Kind(k siwe.ErrorType) string {
	return t.label("type."+string(k), string(k))
}

func (t Translator) label(key, raw string) string {
	if v := t.T(key); v != key {
		return v
	}
	return raw
}

// ParseLanguage maps a flag or request value to a Language. It accepts
// BCP 47 tags ("tr-TR", "en-GB") and the English names of the locales.
func ParseLanguage(s string) (Language, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return LangEnglish, nil
	case "english":
		return LangEnglish, nil
	case "turkish", "türkçe", "turkce":
		return LangTurkish, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, s)
	}
	_, idx, conf := matcher.Match(tag)
	if conf < language.High {
		return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, s)
	}
	base, _ := supported[idx].Base()
	return Language(base.String()), nil
}
