// Package config persists the engine's audio and player settings to an INI
// file.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// AudioSettings mirrors original_source/src/settings/audio_settings.rs.
type AudioSettings struct {
	LayerCount     int
	SoundfontPaths []string
	AudioFPS       float64
	LimiterAttack  float64
	LimiterRelease float64
	Transpose      int
}

// PlayerSettings mirrors original_source/src/settings/player_settings.rs,
// trimmed to the fields relevant to a headless playback engine (show_ui and
// fullscreen belong to the GUI, which is out of scope).
type PlayerSettings struct {
	TickBased bool
}

// DefaultAudioSettings matches the Rust AudioSettings::new() defaults.
func DefaultAudioSettings() AudioSettings {
	return AudioSettings{
		LayerCount:     5,
		SoundfontPaths: nil,
		AudioFPS:       0.0,
		LimiterAttack:  0.01,
		LimiterRelease: 1.0,
		Transpose:      0,
	}
}

// DefaultPlayerSettings matches the Rust PlayerSettings::new() defaults.
func DefaultPlayerSettings() PlayerSettings {
	return PlayerSettings{TickBased: true}
}

// Store wraps a loaded (or freshly created) INI file.
type Store struct {
	path string
	cfg  *ini.File
}

// Load opens path, creating an empty config in memory if it does not exist
// yet (the file is only written back on Save, matching get_config() in
// original_source/src/settings/config.rs).
func Load(path string) (*Store, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		cfg = ini.Empty()
	}
	return &Store{path: path, cfg: cfg}, nil
}

// Save writes the current settings back to disk.
func (s *Store) Save() error {
	return s.cfg.SaveTo(s.path)
}

// LoadAudioSettings reads the [audio] section, falling back to defaults for
// any key that is absent.
func (s *Store) LoadAudioSettings() AudioSettings {
	def := DefaultAudioSettings()
	sec := s.cfg.Section("audio")

	out := AudioSettings{
		LayerCount:     sec.Key("layer_count").MustInt(def.LayerCount),
		AudioFPS:       sec.Key("audio_fps").MustFloat64(def.AudioFPS),
		LimiterAttack:  sec.Key("limiter_attack").MustFloat64(def.LimiterAttack),
		LimiterRelease: sec.Key("limiter_release").MustFloat64(def.LimiterRelease),
		Transpose:      sec.Key("misc_transpose").MustInt(def.Transpose),
	}

	for i := 0; ; i++ {
		key := fmt.Sprintf("soundfont_paths_%d", i)
		if !sec.HasKey(key) {
			break
		}
		out.SoundfontPaths = append(out.SoundfontPaths, sec.Key(key).String())
	}

	return out
}

// SaveAudioSettings writes the [audio] section back into the store (call
// Save to persist it to disk).
func (s *Store) SaveAudioSettings(a AudioSettings) {
	sec := s.cfg.Section("audio")
	sec.Key("layer_count").SetValue(fmt.Sprintf("%d", a.LayerCount))
	sec.Key("audio_fps").SetValue(fmt.Sprintf("%g", a.AudioFPS))
	sec.Key("limiter_attack").SetValue(fmt.Sprintf("%g", a.LimiterAttack))
	sec.Key("limiter_release").SetValue(fmt.Sprintf("%g", a.LimiterRelease))
	sec.Key("misc_transpose").SetValue(fmt.Sprintf("%d", a.Transpose))
	for i, p := range a.SoundfontPaths {
		sec.Key(fmt.Sprintf("soundfont_paths_%d", i)).SetValue(p)
	}
}

// LoadPlayerSettings reads the [player] section, falling back to defaults.
func (s *Store) LoadPlayerSettings() PlayerSettings {
	def := DefaultPlayerSettings()
	sec := s.cfg.Section("player")
	return PlayerSettings{
		TickBased: sec.Key("tick_based").MustBool(def.TickBased),
	}
}

// SavePlayerSettings writes the [player] section back into the store.
func (s *Store) SavePlayerSettings(p PlayerSettings) {
	sec := s.cfg.Section("player")
	sec.Key("tick_based").SetValue(fmt.Sprintf("%t", p.TickBased))
}
