package track

import (
	"io"

	"github.com/MrCHB1/KansoMIDI/internal/logging"
	"github.com/MrCHB1/KansoMIDI/midi/reader"
)

type unendedNote struct {
	id  int // index into notes[key]; -1 is never pushed, kept for parity with the source's sentinel
	vel uint8
}

// Track decodes one MTrk chunk in two passes over its own windowed Reader.
// Pass one (Scan) walks the track without allocating event storage, just to
// learn its note count, tempo events and key range. Pass two (Emit) replays
// the same bytes against the merged global tempo map to produce time-ordered
// MidiEvents, per-key Notes and MetaEvents.
type Track struct {
	rdr       *reader.Reader
	log       *logging.Logger
	ppq       uint16
	trackNum  int
	tickBased bool

	prevCmd byte
	ended   bool

	trackLen   uint64  // pass-one raw tick accumulator
	trackLenP2 float64 // pass-two tick accumulator
	tTrackTime float64 // pass-two seconds accumulator
	tempoID    int
	tempoMulti float64

	keyRangeLo uint8
	keyRangeHi uint8
	noteCount  uint64

	tempoEvs []TempoEvent // populated during pass one

	notes   [256][]Note
	unended [256 * 16][]unendedNote
	events  []MidiEvent
	metas   []MetaEvent
}

// New prepares a track decoder over rdr, which must already be windowed to
// exactly this track's MTrk payload. log may be nil to suppress diagnostics.
func New(rdr *reader.Reader, ppq uint16, trackNum int, tickBased bool, log *logging.Logger) *Track {
	return &Track{
		rdr:        rdr,
		log:        log,
		ppq:        ppq,
		trackNum:   trackNum,
		tickBased:  tickBased,
		tempoMulti: (500000.0 / float64(ppq)) / 1_000_000.0,
		keyRangeLo: 255,
		keyRangeHi: 0,
	}
}

func (t *Track) readDelta() (uint64, error) {
	var n uint64
	for {
		b, err := t.rdr.ReadByte()
		if err != nil {
			return 0, err
		}
		n = (n << 7) | uint64(b&0x7F)
		if b&0x80 == 0 {
			break
		}
	}
	return n, nil
}

// readDeltaTime reads a delta time during pass two and converts it to
// seconds, walking through any global tempo changes the delta spans.
func (t *Track) readDeltaTime(tempoEvs []TempoEvent) (float64, error) {
	n, err := t.readDelta()
	if err != nil {
		return 0, err
	}
	t.trackLenP2 += float64(n)

	if t.tempoID >= len(tempoEvs) || t.trackLenP2 <= float64(tempoEvs[t.tempoID].Tick) {
		return float64(n) * t.tempoMulti, nil
	}

	cursor := t.trackLenP2 - float64(n)
	var v float64
	for t.tempoID < len(tempoEvs) && t.trackLenP2 > float64(tempoEvs[t.tempoID].Tick) {
		boundary := float64(tempoEvs[t.tempoID].Tick)
		v += (boundary - cursor) * t.tempoMulti
		cursor = boundary
		t.tempoMulti = (float64(tempoEvs[t.tempoID].TempoMicros) / float64(t.ppq)) / 1_000_000.0
		t.tempoID++
	}
	v += (t.trackLenP2 - cursor) * t.tempoMulti
	return v, nil
}

func (t *Track) readRunningStatus() (byte, error) {
	cmd, err := t.rdr.ReadByte()
	if err != nil {
		return 0, err
	}
	if cmd < 0x80 {
		if err := t.rdr.Seek(-1, reader.OriginCurrent); err != nil {
			return 0, err
		}
		cmd = t.prevCmd
	}
	t.prevCmd = cmd
	return cmd, nil
}

func (t *Track) skip(n uint64) error {
	return t.rdr.SkipBytes(int64(n))
}

// ScanOne advances pass one by exactly one MIDI event. Callers should loop
// until Ended returns true.
func (t *Track) ScanOne() error {
	if t.ended {
		return nil
	}

	delta, err := t.readDelta()
	if err != nil {
		return err
	}
	t.trackLen += delta

	cmd, err := t.readRunningStatus()
	if err != nil {
		return err
	}

	switch cmd & 0xF0 {
	case 0x80:
		return t.skip(2)
	case 0x90:
		key, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		if key < t.keyRangeLo {
			t.keyRangeLo = key
		}
		if key > t.keyRangeHi {
			t.keyRangeHi = key
		}
		vel, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		if vel > 0 {
			t.noteCount++
		}
		return nil
	case 0xA0, 0xB0, 0xE0:
		return t.skip(2)
	case 0xC0, 0xD0:
		return t.skip(1)
	case 0xF0:
		return t.scanSystem(cmd)
	}
	return nil
}

func (t *Track) scanSystem(cmd byte) error {
	switch cmd {
	case 0xFF:
		cmd2, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		val, err := t.readDelta()
		if err != nil {
			return err
		}
		switch {
		case cmd2 == 0x00:
			return t.skip(2)
		case (cmd2 >= 0x01 && cmd2 <= 0x07) || cmd2 == 0x0A:
			return t.skip(val)
		case cmd2 == 0x7F:
			return t.skip(val)
		case cmd2 == 0x20, cmd2 == 0x21:
			return t.skip(1)
		case cmd2 == 0x2F:
			t.ended = true
			return nil
		case cmd2 == 0x51:
			var tempo uint32
			for i := 0; i < 3; i++ {
				b, err := t.rdr.ReadByte()
				if err != nil {
					return err
				}
				tempo = (tempo << 8) | uint32(b)
			}
			t.tempoEvs = append(t.tempoEvs, TempoEvent{Tick: t.trackLen, TempoMicros: tempo})
			return nil
		case cmd2 == 0x54:
			return t.skip(5)
		case cmd2 == 0x58:
			return t.skip(4)
		case cmd2 == 0x59:
			return t.skip(2)
		default:
			if t.log != nil {
				t.log.LogDebug("track %d: unknown meta event 0x%02X, skipping %d bytes", t.trackNum, cmd2, val)
			}
			return t.skip(val)
		}
	case 0xF0, 0xF7:
		n, err := t.readDelta()
		if err != nil {
			return err
		}
		return t.skip(n)
	case 0xF2:
		return t.skip(2)
	case 0xF3:
		return t.skip(1)
	}
	return nil
}

// Ended reports whether an end-of-track meta event has been seen.
func (t *Track) Ended() bool { return t.ended }

// FinishPassOne returns the accumulated PassOneResult. Call after driving
// ScanOne to completion (Ended() == true) or EOF.
func (t *Track) FinishPassOne() PassOneResult {
	lo, hi := t.keyRangeLo, t.keyRangeHi
	if lo > hi {
		lo, hi = 0, 0
	}
	return PassOneResult{
		NoteCount:  t.noteCount,
		TempoEvs:   t.tempoEvs,
		KeyRangeLo: lo,
		KeyRangeHi: hi,
	}
}

// PrepForPassTwo rewinds the track's reader and resets parser state so
// EmitOne can be driven from the start with the merged global tempo map.
func (t *Track) PrepForPassTwo() error {
	if err := t.rdr.Seek(0, reader.OriginStart); err != nil {
		return err
	}
	t.prevCmd = 0x00
	t.ended = false
	t.trackLenP2 = 0
	t.tTrackTime = 0
	t.tempoID = 0
	t.tempoMulti = (500000.0 / float64(t.ppq)) / 1_000_000.0
	return nil
}

// EmitOne advances pass two by exactly one MIDI event against the merged
// global tempo vector tempoEvs. Callers should loop until Ended returns true.
func (t *Track) EmitOne(tempoEvs []TempoEvent) error {
	if t.ended {
		return nil
	}

	delta, err := t.readDeltaTime(tempoEvs)
	if err != nil {
		return err
	}
	t.tTrackTime += delta

	cmd, err := t.readRunningStatus()
	if err != nil {
		return err
	}

	ch := cmd & 0x0F
	switch cmd & 0xF0 {
	case 0x80:
		return t.emitNoteOff(ch)
	case 0x90:
		return t.emitNoteOnOrOff(ch)
	case 0xB0:
		ctrlNum, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		ctrlVal, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		t.events = append(t.events, MidiEvent{
			TimeSeconds: t.tTrackTime, Kind: Control, Channel: ch, Track: t.trackNum,
			Data1: ctrlNum, Data2: ctrlVal,
		})
		return nil
	case 0xE0:
		v1, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		v2, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		t.events = append(t.events, MidiEvent{
			TimeSeconds: t.tTrackTime, Kind: PitchBend, Channel: ch, Track: t.trackNum,
			Data1: v1, Data2: v2,
		})
		return nil
	case 0xA0:
		return t.skip(2)
	case 0xC0, 0xD0:
		return t.skip(1)
	case 0xF0:
		return t.emitSystem(cmd)
	}
	return nil
}

func (t *Track) noteStart() uint64 {
	if t.tickBased {
		return uint64(t.trackLenP2)
	}
	return uint64(t.tTrackTime * 1_000_000.0)
}

func (t *Track) closeNote(key, ch byte) (matchedVel uint8, matched bool, err error) {
	slot := int(key)*16 + int(ch)
	stack := t.unended[slot]
	if len(stack) == 0 {
		return 0, false, nil
	}
	last := stack[len(stack)-1]
	t.unended[slot] = stack[:len(stack)-1]
	if last.id < 0 {
		return 0, false, nil
	}
	t.notes[key][last.id].End = t.noteStart()
	t.notes[key][last.id].Velocity = last.vel
	return last.vel, true, nil
}

func (t *Track) emitNoteOff(ch byte) error {
	key, err := t.rdr.ReadByte()
	if err != nil {
		return err
	}
	vel, err := t.rdr.ReadByte()
	if err != nil {
		return err
	}
	if matchedVel, matched, err := t.closeNote(key, ch); err != nil {
		return err
	} else if matched {
		vel = matchedVel
	}
	t.events = append(t.events, MidiEvent{
		TimeSeconds: t.tTrackTime, Kind: NoteOff, Channel: ch, Track: t.trackNum,
		Data1: key, Data2: vel,
	})
	return nil
}

func (t *Track) emitNoteOnOrOff(ch byte) error {
	key, err := t.rdr.ReadByte()
	if err != nil {
		return err
	}
	vel, err := t.rdr.ReadByte()
	if err != nil {
		return err
	}

	kind := NoteOn
	if vel == 0 {
		kind = NoteOff
	}
	t.events = append(t.events, MidiEvent{
		TimeSeconds: t.tTrackTime, Kind: kind, Channel: ch, Track: t.trackNum,
		Data1: key, Data2: vel,
	})

	if vel == 0 {
		if _, _, err := t.closeNote(key, ch); err != nil {
			return err
		}
		return nil
	}

	id := len(t.notes[key])
	t.notes[key] = append(t.notes[key], Note{
		Start:    t.noteStart(),
		End:      UnmatchedNoteEnd,
		Channel:  ch,
		Track:    t.trackNum,
		Velocity: 0,
	})
	t.unended[int(key)*16+int(ch)] = append(t.unended[int(key)*16+int(ch)], unendedNote{id: id, vel: vel})
	return nil
}

func (t *Track) emitSystem(cmd byte) error {
	switch cmd {
	case 0xFF:
		cmd2, err := t.rdr.ReadByte()
		if err != nil {
			return err
		}
		val, err := t.readDelta()
		if err != nil {
			return err
		}
		switch {
		case cmd2 == 0x00:
			return t.skip(2)
		case cmd2 == 0x06:
			data := make([]byte, val)
			if val > 0 {
				if err := t.rdr.Read(data, int64(val)); err != nil {
					return err
				}
			}
			t.metas = append(t.metas, MetaEvent{TimeSeconds: t.tTrackTime, Kind: Marker, Data: data})
			return nil
		case (cmd2 >= 0x01 && cmd2 <= 0x05) || cmd2 == 0x07 || cmd2 == 0x0A:
			return t.skip(val)
		case cmd2 == 0x7F:
			return t.skip(val)
		case cmd2 == 0x20, cmd2 == 0x21:
			return t.skip(1)
		case cmd2 == 0x2F:
			t.ended = true
			return nil
		case cmd2 == 0x51:
			for i := 0; i < 3; i++ {
				if _, err := t.rdr.ReadByte(); err != nil {
					return err
				}
			}
			// the global tempo map (merged during pass one) already carries
			// this change; pass two only needs to keep the cursor in sync.
			return nil
		case cmd2 == 0x54:
			return t.skip(5)
		case cmd2 == 0x58:
			return t.skip(4)
		case cmd2 == 0x59:
			return t.skip(2)
		default:
			if t.log != nil {
				t.log.LogDebug("track %d: unknown meta event 0x%02X, skipping %d bytes", t.trackNum, cmd2, val)
			}
			return t.skip(val)
		}
	case 0xF0, 0xF7:
		n, err := t.readDelta()
		if err != nil {
			return err
		}
		return t.skip(n)
	case 0xF2:
		return t.skip(2)
	case 0xF3:
		return t.skip(1)
	}
	return nil
}

// FinishPassTwo returns the accumulated PassTwoResult. Call after driving
// EmitOne to completion.
func (t *Track) FinishPassTwo() PassTwoResult {
	return PassTwoResult{Events: t.events, Notes: t.notes, Metas: t.metas}
}

// RunPassOne drives ScanOne until the track ends or its reader is exhausted.
func RunPassOne(t *Track) (PassOneResult, error) {
	for !t.Ended() {
		if err := t.ScanOne(); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return PassOneResult{}, err
		}
	}
	return t.FinishPassOne(), nil
}

// RunPassTwo drives EmitOne until the track ends or its reader is exhausted,
// using tempoEvs as the already-merged global tempo map.
func RunPassTwo(t *Track, tempoEvs []TempoEvent) (PassTwoResult, error) {
	if err := t.PrepForPassTwo(); err != nil {
		return PassTwoResult{}, err
	}
	for !t.Ended() {
		if err := t.EmitOne(tempoEvs); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return PassTwoResult{}, err
		}
	}
	return t.FinishPassTwo(), nil
}
