package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lingoplay/internal/audio"
	"github.com/dgnsrekt/lingoplay/internal/script"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"golang.org/x/time/rate"
)

// ErrMissingAPIKey is returned when the OpenAI engine has no credentials.
var ErrMissingAPIKey = errors.New("OpenAI API key is not set (OPENAI_API_KEY)")

// maxSpeechInput is the provider's limit on characters per speech request.
const maxSpeechInput = 4096

// OpenAIConfig configures OpenAIGenerator.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	ChatModel   string
	SpeechModel string

	// Voices are assigned to speakers in order of first appearance.
	Voices []string

	// Language is the language being learned; NativeLanguage is used for
	// translations and definitions.
	Language       string
	NativeLanguage string

	// RequestsPerMinute paces all API calls made by one generator.
	RequestsPerMinute int

	// LineGap is the silence inserted between lines in multi-voice audio.
	LineGap time.Duration
}

// DefaultOpenAIConfig returns the defaults used for unset fields.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		ChatModel:         "gpt-4o-mini",
		SpeechModel:       "gpt-4o-mini-tts",
		Voices:            []string{"alloy", "echo", "nova"},
		Language:          "Spanish",
		NativeLanguage:    "English",
		RequestsPerMinute: 50,
		LineGap:           300 * time.Millisecond,
	}
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	d := DefaultOpenAIConfig()
	if c.ChatModel == "" {
		c.ChatModel = d.ChatModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = d.SpeechModel
	}
	if len(c.Voices) == 0 {
		c.Voices = d.Voices
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.NativeLanguage == "" {
		c.NativeLanguage = d.NativeLanguage
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.LineGap < 0 {
		c.LineGap = 0
	}
	return c
}

// OpenAIGenerator generates scripts and definitions with a chat model and
// audio with a speech model. Speech is requested as raw 24kHz 16-bit mono
// PCM, the format the playback clock assumes for headerless payloads.
type OpenAIGenerator struct {
	client      openai.Client
	config      OpenAIConfig
	rateLimiter *rate.Limiter
}

var _ Engine = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator. It fails only when no API key is
// configured.
func NewOpenAIGenerator(config OpenAIConfig) (*OpenAIGenerator, error) {
	config = config.withDefaults()
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// Retries are decided by FallbackSynthesizer, not the SDK.
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		config:      config,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
	}, nil
}

// Generate implements ScriptGenerator.
func (g *OpenAIGenerator) Generate(ctx context.Context, level script.Level) (script.Script, error) {
	reply, err := g.complete(ctx,
		scriptSystemPrompt(g.config.Language, g.config.NativeLanguage),
		scriptUserPrompt(level))
	if err != nil {
		return script.Script{}, classify("generate script", err)
	}

	s, err := parseScript(reply, level)
	if err != nil {
		return script.Script{}, generationError("parse script", err)
	}
	log.Debug("Generated script", "title", s.Title, "lines", len(s.Lines), "level", level)
	return s, nil
}

// Define implements Definer.
func (g *OpenAIGenerator) Define(ctx context.Context, word, sentence string) (script.Definition, error) {
	reply, err := g.complete(ctx,
		definitionSystemPrompt(g.config.Language, g.config.NativeLanguage),
		definitionUserPrompt(word, sentence))
	if err != nil {
		return script.Definition{}, classify("define", err)
	}

	d, err := parseDefinition(reply, word)
	if err != nil {
		return script.Definition{}, generationError("parse definition", err)
	}
	return d, nil
}

// Synthesize implements AudioGenerator. Each line is spoken with its
// speaker's voice and the results are joined with a short silence.
func (g *OpenAIGenerator) Synthesize(ctx context.Context, lines []script.Line) ([]byte, error) {
	if len(lines) == 0 {
		return nil, generationError("synthesize", script.ErrEmptyScript)
	}

	voices := g.assignVoices(lines)
	gap := silence(g.config.LineGap)

	var out []byte
	for i, l := range lines {
		pcm, err := g.speech(ctx, voices[l.Speaker], l.Text)
		if err != nil {
			return nil, classify(fmt.Sprintf("synthesize line %d", l.ID), err)
		}
		out = append(out, pcm...)
		if i < len(lines)-1 {
			out = append(out, gap...)
		}
	}

	log.Debug("Synthesized dialogue", "lines", len(lines), "voices", len(voices), "bytes", len(out))
	return out, nil
}

// SingleVoice returns a degraded synthesizer that reads the whole dialogue
// with one voice in as few requests as possible.
func (g *OpenAIGenerator) SingleVoice() AudioGenerator {
	return singleVoice{g: g}
}

type singleVoice struct {
	g *OpenAIGenerator
}

func (s singleVoice) Synthesize(ctx context.Context, lines []script.Line) ([]byte, error) {
	if len(lines) == 0 {
		return nil, generationError("synthesize", script.ErrEmptyScript)
	}

	var out []byte
	for _, chunk := range chunkLines(lines, maxSpeechInput) {
		pcm, err := s.g.speech(ctx, s.g.config.Voices[0], chunk)
		if err != nil {
			return nil, classify("synthesize single voice", err)
		}
		out = append(out, pcm...)
	}
	return out, nil
}

func (g *OpenAIGenerator) assignVoices(lines []script.Line) map[string]string {
	speakers := script.Script{Lines: lines}.Speakers()
	voices := make(map[string]string, len(speakers))
	for i, sp := range speakers {
		voices[sp] = g.config.Voices[i%len(g.config.Voices)]
	}
	return voices
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, user string) (string, error) {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.config.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: param.NewOpt(0.9),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) speech(ctx context.Context, voice, text string) ([]byte, error) {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	resp, err := g.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(g.config.SpeechModel),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	// Keep frames whole so concatenated segments stay aligned.
	return data[:len(data)&^1], nil
}

// classify maps provider errors onto the package sentinels.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s: %w", ErrRateLimited, op, err)
	}
	return generationError(op, err)
}

// silence returns d worth of zero samples at the default output format.
func silence(d time.Duration) []byte {
	frames := int(d.Seconds() * audio.DefaultSampleRate)
	return make([]byte, frames*audio.DefaultChannels*2)
}

// chunkLines joins line texts into pieces of at most limit runes, breaking
// only between lines unless a single line is longer than limit.
func chunkLines(lines []script.Line, limit int) []string {
	var chunks []string
	var b strings.Builder
	n := 0

	flush := func() {
		if b.Len() > 0 {
			chunks = append(chunks, b.String())
			b.Reset()
			n = 0
		}
	}

	for _, l := range lines {
		text := l.Text
		for utf8.RuneCountInString(text) > limit {
			flush()
			cut := byteIndexOfRune(text, limit)
			chunks = append(chunks, text[:cut])
			text = text[cut:]
		}

		size := utf8.RuneCountInString(text)
		if n > 0 && n+1+size > limit {
			flush()
		}
		if n > 0 {
			b.WriteByte('\n')
			n++
		}
		b.WriteString(text)
		n += size
	}
	flush()
	return chunks
}

func byteIndexOfRune(s string, runeIndex int) int {
	i := 0
	for pos := range s {
		if i == runeIndex {
			return pos
		}
		i++
	}
	return len(s)
}
