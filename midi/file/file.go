// Package file parses a complete Standard MIDI File: it locates the MThd
// header and every MTrk chunk, then drives one midi/track.Track per chunk
// through both parser passes in parallel, merging their per-track results
// into one globally time-ordered stream.
package file

import (
	"context"
	"errors"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrCHB1/KansoMIDI/internal/logging"
	"github.com/MrCHB1/KansoMIDI/midi/merge"
	"github.com/MrCHB1/KansoMIDI/midi/reader"
	"github.com/MrCHB1/KansoMIDI/midi/track"
)

// trackBufferSize is the window size each track's reader.Reader keeps in memory,
// matching the value the original parser used for its buffered byte reader.
const trackBufferSize = 100_000

var (
	// ErrBadHeader is returned when the file does not start with an MThd
	// chunk declaring a 6-byte header.
	ErrBadHeader = errors.New("file: not a standard MIDI file")
	// ErrFormat2 is returned for format-2 files, which are not supported:
	// their tracks are independent sequences rather than one song.
	ErrFormat2 = errors.New("file: format 2 standard MIDI files are not supported")
	// ErrBadChunk is returned when an expected MTrk chunk is missing.
	ErrBadChunk = errors.New("file: expected MTrk chunk")
)

const (
	mthdMagic = 0x4D546864
	mtrkMagic = 0x4D54726B
)

// File is a fully parsed Standard MIDI File: a merged, time-ordered event
// stream, merged per-key note vectors and merged marker events.
type File struct {
	PPQ        uint16
	TrackCount uint16

	TrackLocations []track.TrackPointer
	TempoEvs       []track.TempoEvent
	Events         []track.MidiEvent
	Notes          [256][]track.Note
	Metas          []track.MetaEvent

	handle *os.File
	mu     *sync.Mutex
	log    *logging.Logger

	tickBased bool
}

// Open reads the header and track table of the Standard MIDI File at path.
// It does not parse track contents; call ParseAll for that. tickBased
// selects whether resulting Note times are expressed in ticks or
// microseconds.
func Open(path string, tickBased bool, log *logging.Logger) (*File, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	f := &File{
		handle:    handle,
		mu:        &sync.Mutex{},
		log:       log,
		tickBased: tickBased,
	}

	offset, err := f.parseHeader()
	if err != nil {
		handle.Close()
		return nil, err
	}
	if err := f.populateTrackLocations(offset); err != nil {
		handle.Close()
		return nil, err
	}
	return f, nil
}

// Close releases the underlying file handle.
func (f *File) Close() error { return f.handle.Close() }

func (f *File) readUint32At(off int64) (uint32, error) {
	var b [4]byte
	if _, err := f.handle.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (f *File) readUint16At(off int64) (uint16, error) {
	var b [2]byte
	if _, err := f.handle.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// parseHeader reads the 14-byte MThd chunk and returns the offset of the
// first MTrk chunk.
func (f *File) parseHeader() (int64, error) {
	magic, err := f.readUint32At(0)
	if err != nil {
		return 0, err
	}
	if magic != mthdMagic {
		return 0, ErrBadHeader
	}

	headerLen, err := f.readUint32At(4)
	if err != nil {
		return 0, err
	}
	if headerLen != 6 {
		return 0, ErrBadHeader
	}

	format, err := f.readUint16At(8)
	if err != nil {
		return 0, err
	}
	if format == 2 {
		return 0, ErrFormat2
	}

	trackCount, err := f.readUint16At(10)
	if err != nil {
		return 0, err
	}
	ppq, err := f.readUint16At(12)
	if err != nil {
		return 0, err
	}

	f.TrackCount = trackCount
	f.PPQ = ppq
	return 14, nil
}

func (f *File) populateTrackLocations(offset int64) error {
	f.TrackLocations = make([]track.TrackPointer, 0, f.TrackCount)

	for i := uint16(0); i < f.TrackCount; i++ {
		magic, err := f.readUint32At(offset)
		if err != nil {
			return err
		}
		if magic != mtrkMagic {
			return ErrBadChunk
		}

		length, err := f.readUint32At(offset + 4)
		if err != nil {
			return err
		}

		start := offset + 8
		f.TrackLocations = append(f.TrackLocations, track.TrackPointer{
			Start:  start,
			Length: int64(length),
		})
		offset = start + int64(length)
	}
	return nil
}

func tempoLess(a, b track.TempoEvent) bool { return a.Tick < b.Tick }

func eventLess(a, b track.MidiEvent) bool {
	if a.TimeSeconds != b.TimeSeconds {
		return a.TimeSeconds < b.TimeSeconds
	}
	return a.Track < b.Track
}

func noteLess(a, b track.Note) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.Track < b.Track
}

func metaLess(a, b track.MetaEvent) bool { return a.TimeSeconds < b.TimeSeconds }

// ParseAll runs both parser passes over every track in parallel and merges
// their results into f.Events, f.Notes, f.Metas and f.TempoEvs.
func (f *File) ParseAll(ctx context.Context) error {
	tracks := make([]*track.Track, f.TrackCount)
	for i, loc := range f.TrackLocations {
		rdr, err := reader.New(f.handle, f.mu, loc.Start, loc.Length, trackBufferSize)
		if err != nil {
			return err
		}
		tracks[i] = track.New(rdr, f.PPQ, i, f.tickBased, f.log)
	}

	passOne := make([]track.PassOneResult, len(tracks))
	g, _ := errgroup.WithContext(ctx)
	for i, tr := range tracks {
		i, tr := i, tr
		g.Go(func() error {
			res, err := track.RunPassOne(tr)
			if err != nil {
				return err
			}
			passOne[i] = res
			if f.log != nil {
				f.log.LogDebug("track %d/%d parsed (pass one)", i+1, len(tracks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tempoSeqs := make([][]track.TempoEvent, len(tracks))
	for i, r := range passOne {
		tempoSeqs[i] = r.TempoEvs
	}
	globalTempo := merge.Pairwise(tempoSeqs, tempoLess)
	f.TempoEvs = globalTempo

	passTwo := make([]track.PassTwoResult, len(tracks))
	g2, _ := errgroup.WithContext(ctx)
	for i, tr := range tracks {
		i, tr := i, tr
		g2.Go(func() error {
			res, err := track.RunPassTwo(tr, globalTempo)
			if err != nil {
				return err
			}
			passTwo[i] = res
			if f.log != nil {
				f.log.LogDebug("track %d/%d parsed (pass two)", i+1, len(tracks))
			}
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		return err
	}

	eventSeqs := make([][]track.MidiEvent, len(tracks))
	metaSeqs := make([][]track.MetaEvent, len(tracks))
	for i, r := range passTwo {
		eventSeqs[i] = r.Events
		metaSeqs[i] = r.Metas
	}
	f.Events = merge.Pairwise(eventSeqs, eventLess)
	f.Metas = merge.Pairwise(metaSeqs, metaLess)

	for key := 0; key < 256; key++ {
		seqs := make([][]track.Note, len(tracks))
		for i, r := range passTwo {
			seqs[i] = r.Notes[key]
		}
		f.Notes[key] = merge.Pairwise(seqs, noteLess)
	}

	return nil
}
