// Command kansoplay loads a SoundFont and a Standard MIDI File and plays it
// through the default audio device until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/MrCHB1/KansoMIDI/internal/config"
	"github.com/MrCHB1/KansoMIDI/internal/logging"
	"github.com/MrCHB1/KansoMIDI/midi/file"
	"github.com/MrCHB1/KansoMIDI/playback/player"
)

const sampleRate = 44100
const bufferSeconds = 2.0

func main() {
	soundfonts := flag.String("soundfonts", "", "comma-separated SoundFont (.sf2) paths")
	layerCount := flag.Int("layers", 0, "number of loaded soundfonts to layer (0 = use config default)")
	transpose := flag.Int("transpose", 0, "semitone transpose applied to every note")
	speed := flag.Float64("speed", 1.0, "playback speed multiplier")
	tickBased := flag.Bool("tick-based", false, "use tick units instead of microseconds for note timing")
	configPath := flag.String("config", "kansoplay.ini", "settings file to load/save")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: kansoplay [flags] <input.mid>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	midiPath := args[0]

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(level, os.Stdout)

	store, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("kansoplay: loading config: %v", err)
	}
	audioSettings := store.LoadAudioSettings()
	playerSettings := store.LoadPlayerSettings()

	if *soundfonts != "" {
		audioSettings.SoundfontPaths = strings.Split(*soundfonts, ",")
	}
	if len(audioSettings.SoundfontPaths) == 0 {
		log.Fatalf("kansoplay: no soundfonts given (use -soundfonts or set them in %s)", *configPath)
	}
	if *layerCount > 0 {
		audioSettings.LayerCount = *layerCount
	}
	if *transpose != 0 {
		audioSettings.Transpose = *transpose
	}
	if *tickBased {
		playerSettings.TickBased = true
	}

	logger.LogInfo("kansoplay: loading %s with %d soundfont(s), layer count %d",
		midiPath, len(audioSettings.SoundfontPaths), audioSettings.LayerCount)

	smf, err := file.Open(midiPath, playerSettings.TickBased, logger)
	if err != nil {
		log.Fatalf("kansoplay: opening %s: %v", midiPath, err)
	}
	defer smf.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := smf.ParseAll(ctx); err != nil {
		log.Fatalf("kansoplay: parsing %s: %v", midiPath, err)
	}
	logger.LogInfo("kansoplay: parsed %d tracks, %d events", smf.TrackCount, len(smf.Events))

	audioCtx := audio.NewContext(sampleRate)
	pl := player.New(audioCtx, sampleRate, bufferSeconds, logger)

	if err := pl.LoadSoundfonts(audioSettings.SoundfontPaths); err != nil {
		log.Fatalf("kansoplay: loading soundfonts: %v", err)
	}
	if err := pl.SetLayerCount(audioSettings.LayerCount); err != nil {
		log.Fatalf("kansoplay: setting layer count: %v", err)
	}
	pl.SetTranspose(audioSettings.Transpose)
	pl.SetAudioFPS(audioSettings.AudioFPS)
	pl.SetMidiEvents(smf.Events)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	pl.Start(0, *speed)
	logger.LogInfo("kansoplay: playback started (ctrl-C to stop)")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			logger.LogInfo("kansoplay: stopping")
			pl.Stop()
			return
		case <-ticker.C:
			logger.LogInfo("kansoplay: t=%.2fs", pl.PlayerTime())
		}
	}
}
