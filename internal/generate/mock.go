package generate

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/lingoplay/internal/audio"
	"github.com/dgnsrekt/lingoplay/internal/script"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	mockToneBase      = 220.0
	mockToneAmplitude = 0.2
	mockLineGap       = 250 * time.Millisecond
	mockFade          = 10 * time.Millisecond
)

// speakers get distinct pitches so lines are audible apart
var mockToneRatios = []float64{1, 1.25, 1.5, 2}

// MockGenerator is an offline engine. Scripts come from a small built-in
// set, audio is a WAV tone per line whose length follows the text, and
// definitions are templated.
type MockGenerator struct {
	mu sync.Mutex

	delay        time.Duration
	failureError error

	scriptCalls int
	audioCalls  int
	defineCalls int
}

var _ Engine = (*MockGenerator)(nil)

// NewMockGenerator creates a mock engine with no delay.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate implements ScriptGenerator.
func (m *MockGenerator) Generate(ctx context.Context, level script.Level) (script.Script, error) {
	m.mu.Lock()
	m.scriptCalls++
	n := m.scriptCalls
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return script.Script{}, err
	}

	scripts := mockScripts[level]
	if len(scripts) == 0 {
		scripts = mockScripts[script.Intermediate]
	}
	s := cloneScript(scripts[(n-1)%len(scripts)])
	s.Difficulty = level
	return s, nil
}

// Synthesize implements AudioGenerator.
func (m *MockGenerator) Synthesize(ctx context.Context, lines []script.Line) ([]byte, error) {
	m.mu.Lock()
	m.audioCalls++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, generationError("synthesize", script.ErrEmptyScript)
	}

	payload, err := renderToneWAV(lines)
	if err != nil {
		return nil, generationError("render tone", err)
	}
	return payload, nil
}

// Define implements Definer.
func (m *MockGenerator) Define(ctx context.Context, word, sentence string) (script.Definition, error) {
	m.mu.Lock()
	m.defineCalls++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return script.Definition{}, err
	}

	return script.Definition{
		Word:      word,
		Primary:   fmt.Sprintf("%q as used in %q.", word, sentence),
		Secondary: "",
		Example:   fmt.Sprintf("Otra frase con %s.", word),
	}, nil
}

// Test control methods

// SetDelay sets the simulated processing delay for every call.
func (m *MockGenerator) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// SetFailure makes every call fail with err.
func (m *MockGenerator) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureError = err
}

// ClearFailure resets the generator to normal operation.
func (m *MockGenerator) ClearFailure() {
	m.SetFailure(nil)
}

// ScriptCalls returns the number of Generate calls.
func (m *MockGenerator) ScriptCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scriptCalls
}

// AudioCalls returns the number of Synthesize calls.
func (m *MockGenerator) AudioCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioCalls
}

// DefineCalls returns the number of Define calls.
func (m *MockGenerator) DefineCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defineCalls
}

func (m *MockGenerator) wait(ctx context.Context) error {
	m.mu.Lock()
	delay, failure := m.delay, m.failureError
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failure != nil {
		return failure
	}
	return nil
}

// MockToneDuration is the length of the tone rendered for one line.
func MockToneDuration(text string) time.Duration {
	d := 500*time.Millisecond + time.Duration(utf8.RuneCountInString(text))*60*time.Millisecond
	if d > 6*time.Second {
		d = 6 * time.Second
	}
	return d
}

// renderToneWAV renders the lines as 16-bit mono WAV at the default
// output rate. The encoder needs a seekable writer, so the file goes
// through a temp file.
func renderToneWAV(lines []script.Line) ([]byte, error) {
	rate := audio.DefaultSampleRate
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
	}

	speakers := make(map[string]int)
	gap := int(mockLineGap.Seconds() * float64(rate))
	fade := int(mockFade.Seconds() * float64(rate))

	for i, l := range lines {
		idx, ok := speakers[l.Speaker]
		if !ok {
			idx = len(speakers)
			speakers[l.Speaker] = idx
		}
		freq := mockToneBase * mockToneRatios[idx%len(mockToneRatios)]

		n := int(MockToneDuration(l.Text).Seconds() * float64(rate))
		for s := 0; s < n; s++ {
			env := 1.0
			if s < fade {
				env = float64(s) / float64(fade)
			} else if n-s < fade {
				env = float64(n-s) / float64(fade)
			}
			v := mockToneAmplitude * env * math.Sin(2*math.Pi*freq*float64(s)/float64(rate))
			buf.Data = append(buf.Data, int(v*math.MaxInt16))
		}
		if i < len(lines)-1 {
			buf.Data = append(buf.Data, make([]int, gap)...)
		}
	}

	f, err := os.CreateTemp("", "lingoplay-tone-*.wav")
	if err != nil {
		return nil, err
	}
	name := f.Name()
	defer os.Remove(name)

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}

func cloneScript(s script.Script) script.Script {
	s.Lines = append([]script.Line(nil), s.Lines...)
	return s
}

var mockScripts = map[script.Level][]script.Script{
	script.Beginner: {
		{
			Title:   "En la cafetería",
			Context: "Two friends meet at a **café** in Madrid and order breakfast.",
			Lines: []script.Line{
				{ID: 1, Speaker: "Lucía", Text: "¡Hola, Marco! ¿Qué quieres tomar?", Translation: "Hi, Marco! What do you want to have?", Sentiment: "friendly"},
				{ID: 2, Speaker: "Marco", Text: "Un café con leche, por favor.", Translation: "A coffee with milk, please.", Sentiment: "neutral"},
				{ID: 3, Speaker: "Lucía", Text: "¿Y para comer?", Translation: "And to eat?", Sentiment: "curious"},
				{ID: 4, Speaker: "Marco", Text: "Una tostada con tomate.", Translation: "Toast with tomato.", Sentiment: "happy"},
				{ID: 5, Speaker: "Lucía", Text: "Perfecto. Yo invito hoy.", Translation: "Perfect. It's on me today.", Sentiment: "generous"},
				{ID: 6, Speaker: "Marco", Text: "¡Muchas gracias!", Translation: "Thank you very much!", Sentiment: "grateful"},
			},
		},
	},
	script.Intermediate: {
		{
			Title:   "Buscando piso",
			Context: "Ana calls a landlord about a flat she saw **online**.",
			Lines: []script.Line{
				{ID: 1, Speaker: "Ana", Text: "Buenas tardes, llamo por el piso de la calle Mayor.", Translation: "Good afternoon, I'm calling about the flat on Mayor Street.", Sentiment: "polite"},
				{ID: 2, Speaker: "Señor Ruiz", Text: "Sí, todavía está disponible. ¿Quiere verlo?", Translation: "Yes, it's still available. Would you like to see it?", Sentiment: "helpful"},
				{ID: 3, Speaker: "Ana", Text: "Me encantaría. ¿Los gastos están incluidos en el alquiler?", Translation: "I'd love to. Are the bills included in the rent?", Sentiment: "curious"},
				{ID: 4, Speaker: "Señor Ruiz", Text: "El agua sí, pero la luz se paga aparte.", Translation: "Water is, but electricity is paid separately.", Sentiment: "neutral"},
				{ID: 5, Speaker: "Ana", Text: "Vale. ¿Podría pasar mañana por la tarde?", Translation: "Okay. Could I come by tomorrow afternoon?", Sentiment: "hopeful"},
				{ID: 6, Speaker: "Señor Ruiz", Text: "Claro. ¿A las cinco le viene bien?", Translation: "Sure, does five o'clock suit you?", Sentiment: "friendly"},
				{ID: 7, Speaker: "Ana", Text: "Perfecto, allí estaré. Muchas gracias.", Translation: "Perfect, I'll be there. Thanks a lot.", Sentiment: "pleased"},
			},
		},
	},
	script.Advanced: {
		{
			Title:   "La reunión que pudo ser un correo",
			Context: "Three colleagues debate whether to **postpone** a product launch.",
			Lines: []script.Line{
				{ID: 1, Speaker: "Elena", Text: "No nos vamos a andar con rodeos: el lanzamiento no está listo.", Translation: "Let's not beat around the bush: the launch isn't ready.", Sentiment: "firm"},
				{ID: 2, Speaker: "Javier", Text: "Hombre, tampoco es para tanto. Faltan detalles, nada más.", Translation: "Come on, it's not that bad. Just a few details are missing.", Sentiment: "dismissive"},
				{ID: 3, Speaker: "Carmen", Text: "Esos detalles son los que nos pueden salir caros si fallan en producción.", Translation: "Those details are what could cost us dearly if they fail in production.", Sentiment: "concerned"},
				{ID: 4, Speaker: "Javier", Text: "Si lo retrasamos otra vez, el cliente se nos echa encima.", Translation: "If we delay it again, the client will come down on us.", Sentiment: "worried"},
				{ID: 5, Speaker: "Elena", Text: "Prefiero dar la cara ahora que pedir perdón después.", Translation: "I'd rather face it now than apologize later.", Sentiment: "determined"},
				{ID: 6, Speaker: "Carmen", Text: "Propongo una semana más y un informe diario para el cliente.", Translation: "I propose one more week and a daily report for the client.", Sentiment: "constructive"},
				{ID: 7, Speaker: "Javier", Text: "Está bien, me habéis convencido. Pero ni un día más.", Translation: "Fine, you've convinced me. But not one day more.", Sentiment: "reluctant"},
			},
		},
	},
}
