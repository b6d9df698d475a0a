// Package prompt renders the message bodies and agent instructions the
// scheduling sweeps produce: the nightly conversation opener prompt, the
// scheduled check-in, the re-engagement nudge, and the plan warning.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"lingopal/internal/types"
)

//go:embed templates/*.txt
var templateFS embed.FS

// templateFiles maps each message kind to its embedded template.
var templateFiles = map[types.MessageKind]string{
	types.MessageNightlyOpener: "templates/daily_prompt.txt",
	types.MessageScheduled:     "templates/check_in.txt",
	types.MessageReengagement:  "templates/reengagement.txt",
	types.MessagePlanWarning:   "templates/plan_warning.txt",
}

// promptData is the struct passed into the templates for rendering.
type promptData struct {
	DisplayName string
	Language    string
	LocalDate   string
	Weekday     string
	DaysSilent  int
}

// Builder renders prompts and message bodies from embedded text templates.
// Rendering is pure: everything time-dependent comes in through arguments,
// so the same inputs always produce the same text.
type Builder struct {
	templates map[types.MessageKind]*template.Template
}

// NewBuilder parses the embedded templates and returns a Builder.
// Returns an error if any template fails to parse.
func NewBuilder() (*Builder, error) {
	b := &Builder{
		templates: make(map[types.MessageKind]*template.Template, len(templateFiles)),
	}

	for kind, file := range templateFiles {
		content, err := templateFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("prompt builder: failed to read %s: %w", file, err)
		}
		tmpl, err := template.New(string(kind)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("prompt builder: failed to parse %s: %w", file, err)
		}
		b.templates[kind] = tmpl
	}

	return b, nil
}

// DailyPrompt renders the agent instruction that opens a fresh daily
// conversation. localNow must already be in the subscriber's timezone.
func (b *Builder) DailyPrompt(sub *types.Subscriber, localNow time.Time) (string, error) {
	return b.render(types.MessageNightlyOpener, dataFor(sub, localNow))
}

// CheckIn renders the scheduled check-in body the dispatch sweep pushes.
// localNow must already be in the subscriber's timezone.
func (b *Builder) CheckIn(sub *types.Subscriber, localNow time.Time) (string, error) {
	return b.render(types.MessageScheduled, dataFor(sub, localNow))
}

// Nudge renders the re-engagement message for a subscriber who has been
// silent for the given duration.
func (b *Builder) Nudge(sub *types.Subscriber, silentFor time.Duration) (string, error) {
	data := promptData{
		DisplayName: sub.DisplayName,
		Language:    languageName(sub.Language),
		DaysSilent:  int(silentFor / (24 * time.Hour)),
	}
	return b.render(types.MessageReengagement, data)
}

// PlanWarning renders the message sent when a free subscriber's trial no
// longer covers scheduled sends.
func (b *Builder) PlanWarning(sub *types.Subscriber) (string, error) {
	data := promptData{
		DisplayName: sub.DisplayName,
		Language:    languageName(sub.Language),
	}
	return b.render(types.MessagePlanWarning, data)
}

func dataFor(sub *types.Subscriber, localNow time.Time) promptData {
	return promptData{
		DisplayName: sub.DisplayName,
		Language:    languageName(sub.Language),
		LocalDate:   localNow.Format("Monday, January 2"),
		Weekday:     localNow.Format("Monday"),
	}
}

func (b *Builder) render(kind types.MessageKind, data promptData) (string, error) {
	tmpl, ok := b.templates[kind]
	if !ok {
		return "", fmt.Errorf("prompt builder: no template for message kind %q", kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt builder: failed to render %q: %w", kind, err)
	}
	return buf.String(), nil
}

// languageNames maps ISO 639-1 codes to the display names used in message
// copy. Unknown codes fall back to the raw code.
var languageNames = map[string]string{
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"pt": "Portuguese",
	"zh": "Chinese",
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
