package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Translator renders user facing messages by id in the caller's language.
type Translator struct {
	bundle   *goi18n.Bundle
	fallback string
}

// New builds a translator with the embedded locales. defaultLang is used when a
// request names no language the bundle knows.
func New(defaultLang string) (*Translator, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("parse default language %q: %w", defaultLang, err)
	}

	bundle := goi18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(locales, "locales/*.json")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(locales, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	return &Translator{bundle: bundle, fallback: defaultLang}, nil
}

// Localize returns the message for id. langs are Accept-Language style values.
// Unknown ids come back as the id itself so nothing is ever rendered empty.
func (t *Translator) Localize(id string, data map[string]interface{}, langs ...string) string {
	langs = append(langs, t.fallback)
	localizer := goi18n.NewLocalizer(t.bundle, langs...)
	msg, err := localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}
