package i18n

import (
	"embed"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var localeFS embed.FS

// Translator renders user-facing messages from the embedded catalog
type Translator struct {
	localizer *i18n.Localizer
	logger    *slog.Logger
}

// NewTranslator builds a translator for the given locale (e.g. "ru")
func NewTranslator(locale string, logger *slog.Logger) (*Translator, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	file := fmt.Sprintf("active.%s.toml", tag.String())
	if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file, err)
	}

	return &Translator{
		localizer: i18n.NewLocalizer(bundle, tag.String()),
		logger:    logger.WithGroup("i18n"),
	}, nil
}

// T renders the message identified by key. Unknown keys render as the key itself.
func (t *Translator) T(key string, data map[string]any) string {
	if key == "" {
		return ""
	}

	msg, err := t.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		t.logger.Warn("Failed to localize message",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return key
	}
	return msg
}
