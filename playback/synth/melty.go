package synth

import (
	"os"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

// MeltySynth backs Synth with go-meltysynth. Multiple SoundFonts are held
// as independent Synthesizer instances layered on top of each other and
// mixed by summation on render; LayerCount controls how many of the loaded
// SoundFonts are currently active, front of the list first.
type MeltySynth struct {
	mu sync.Mutex

	sampleRate int
	settings   *meltysynth.SynthesizerSettings

	fonts      []*meltysynth.SoundFont
	layerCount int
	active     []*meltysynth.Synthesizer

	scratchL, scratchR []float32
	mixL, mixR         []float32
}

// NewMeltySynth creates a synth backend rendering at sampleRate. No
// SoundFonts are loaded until a SetSoundfonts event arrives.
func NewMeltySynth(sampleRate int) *MeltySynth {
	return &MeltySynth{
		sampleRate: sampleRate,
		settings:   meltysynth.NewSynthesizerSettings(int32(sampleRate)),
		layerCount: 1,
	}
}

func (m *MeltySynth) loadSoundfonts(paths []string) error {
	fonts := make([]*meltysynth.SoundFont, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		sf, err := meltysynth.NewSoundFont(f)
		f.Close()
		if err != nil {
			return err
		}
		fonts = append(fonts, sf)
	}
	m.fonts = fonts
	return m.rebuildActive()
}

func (m *MeltySynth) rebuildActive() error {
	n := m.layerCount
	if n <= 0 || n > len(m.fonts) {
		n = len(m.fonts)
	}

	active := make([]*meltysynth.Synthesizer, 0, n)
	for i := 0; i < n; i++ {
		s, err := meltysynth.NewSynthesizer(m.fonts[i], m.settings)
		if err != nil {
			return err
		}
		active = append(active, s)
	}
	m.active = active
	return nil
}

// SendEvent applies ev to every active layer.
func (m *MeltySynth) SendEvent(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case SetSoundfonts:
		return m.loadSoundfonts(ev.Soundfonts)
	case SetLayerCount:
		m.layerCount = ev.LayerCount
		return m.rebuildActive()
	case AllNotesKilled:
		for _, s := range m.active {
			s.Reset()
		}
		return nil
	case NoteOn:
		for _, s := range m.active {
			s.ProcessMidiMessage(int32(ev.Channel), 0x90, int32(ev.Data1), int32(ev.Data2))
		}
		return nil
	case NoteOff:
		for _, s := range m.active {
			s.ProcessMidiMessage(int32(ev.Channel), 0x80, int32(ev.Data1), 0)
		}
		return nil
	case Control:
		for _, s := range m.active {
			s.ProcessMidiMessage(int32(ev.Channel), 0xB0, int32(ev.Data1), int32(ev.Data2))
		}
		return nil
	case PitchBend:
		for _, s := range m.active {
			s.ProcessMidiMessage(int32(ev.Channel), 0xE0, int32(ev.Data1), int32(ev.Data2))
		}
		return nil
	}
	return nil
}

// ReadSamples renders len(dst)/2 stereo frames, summing every active layer.
func (m *MeltySynth) ReadSamples(dst []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := len(dst) / 2
	if cap(m.mixL) < frames {
		m.mixL = make([]float32, frames)
		m.mixR = make([]float32, frames)
	}
	mixL, mixR := m.mixL[:frames], m.mixR[:frames]
	for i := range mixL {
		mixL[i] = 0
		mixR[i] = 0
	}

	if cap(m.scratchL) < frames {
		m.scratchL = make([]float32, frames)
		m.scratchR = make([]float32, frames)
	}
	scratchL, scratchR := m.scratchL[:frames], m.scratchR[:frames]

	for _, s := range m.active {
		s.Render(scratchL, scratchR)
		for i := 0; i < frames; i++ {
			mixL[i] += scratchL[i]
			mixR[i] += scratchR[i]
		}
	}

	for i := 0; i < frames; i++ {
		dst[i*2] = mixL[i]
		dst[i*2+1] = mixR[i]
	}
}
