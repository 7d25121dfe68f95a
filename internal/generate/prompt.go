package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgnsrekt/lingoplay/internal/script"
)

var errNoJSON = errors.New("response contains no JSON object")

var levelGuidance = map[script.Level]string{
	script.Beginner:     "Use short sentences, the present tense and very common words.",
	script.Intermediate: "Use natural everyday conversation with a few less common words.",
	script.Advanced:     "Use idioms, varied tenses and longer exchanges.",
}

func scriptSystemPrompt(language, native string) string {
	return fmt.Sprintf(`You write short dialogues for people learning %s.
Reply with a single JSON object and nothing else, shaped like:
{"title": string, "context": string, "lines": [{"id": number, "speaker": string, "text": string, "translation": string, "sentiment": string}]}
"text" is in %s, "translation" is in %s, "context" is a one paragraph scene description in %s written in Markdown.
Use two or three speakers with first names, between 6 and 12 lines, and number lines from 1.`,
		language, language, native, native)
}

func scriptUserPrompt(level script.Level) string {
	return fmt.Sprintf("Write a new %s level dialogue. %s", level, levelGuidance[level])
}

func definitionSystemPrompt(language, native string) string {
	return fmt.Sprintf(`You are a %s dictionary for %s speakers.
Reply with a single JSON object and nothing else, shaped like:
{"word": string, "definitionPrimary": string, "definitionSecondary": string, "example": string}
"definitionPrimary" explains the meaning in the given sentence, "definitionSecondary" gives another common meaning or an empty string, "example" is a new %s sentence using the word.`,
		language, native, language)
}

func definitionUserPrompt(word, sentence string) string {
	return fmt.Sprintf("Word: %s\nSentence: %s", word, sentence)
}

// extractJSON returns the outermost JSON object in a model reply, dropping
// Markdown code fences and surrounding prose.
func extractJSON(reply string) (string, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return "", errNoJSON
	}
	return reply[start : end+1], nil
}

// parseScript decodes and validates a generated script. Missing line ids
// are filled in by position.
func parseScript(reply string, level script.Level) (script.Script, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return script.Script{}, err
	}

	var s script.Script
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return script.Script{}, fmt.Errorf("decode script: %w", err)
	}

	missingIDs := true
	for _, l := range s.Lines {
		if l.ID != 0 {
			missingIDs = false
			break
		}
	}
	for i := range s.Lines {
		if missingIDs {
			s.Lines[i].ID = i + 1
		}
		s.Lines[i].Speaker = plainText(s.Lines[i].Speaker)
		s.Lines[i].Text = plainText(s.Lines[i].Text)
		s.Lines[i].Translation = plainText(s.Lines[i].Translation)
	}
	s.Difficulty = level

	if err := s.Validate(); err != nil {
		return script.Script{}, err
	}
	return s, nil
}

func parseDefinition(reply, word string) (script.Definition, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return script.Definition{}, err
	}

	var d script.Definition
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return script.Definition{}, fmt.Errorf("decode definition: %w", err)
	}
	if strings.TrimSpace(d.Primary) == "" {
		return script.Definition{}, errors.New("definition is empty")
	}
	if d.Word == "" {
		d.Word = word
	}
	return d, nil
}
