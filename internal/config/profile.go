package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile describes the assistant: which models it talks to, the voices it
// may use and the system prompt for each capture mode. Mode-specific
// instructions live here rather than in code.
type Profile struct {
	Name         string            `yaml:"name"`
	LiveModel    string            `yaml:"live_model"`
	Voices       []string          `yaml:"voices"`
	DefaultVoice string            `yaml:"default_voice"`
	Prompts      map[string]string `yaml:"prompts"`
	Views        []string          `yaml:"views"`
	Studio       StudioModels      `yaml:"studio"`
	Audio        AudioDefaults     `yaml:"audio"`
}

// StudioModels names the one-shot generation models.
type StudioModels struct {
	ImageModel  string `yaml:"image_model"`
	SpeechModel string `yaml:"speech_model"`
	VideoModel  string `yaml:"video_model"`
}

// AudioDefaults holds capture and playback parameters.
type AudioDefaults struct {
	InputSampleRate  int     `yaml:"input_sample_rate"`
	OutputSampleRate int     `yaml:"output_sample_rate"`
	BlockSize        int     `yaml:"block_size"`
	LevelDecay       float64 `yaml:"level_decay"`
	VideoFPS         float64 `yaml:"video_fps"`
}

const basePrompt = "You are Murmur, a friendly voice assistant. Keep answers short and conversational. " +
	"You can navigate the app, draft emails, and change your own voice using the tools you have."

// DefaultProfile returns the built-in profile.
func DefaultProfile() Profile {
	return Profile{
		Name:         "murmur",
		LiveModel:    "gemini-2.0-flash-live-001",
		Voices:       []string{"Puck", "Charon", "Kore", "Fenrir", "Aoede"},
		DefaultVoice: "Puck",
		Prompts: map[string]string{
			"voice":  basePrompt,
			"camera": basePrompt + " You also receive camera frames; describe what you see when it helps.",
			"screen": basePrompt + " You also receive screenshots of the user's screen; refer to them when asked.",
		},
		Views: []string{"assistant", "image", "thumbnail", "video", "speech"},
		Studio: StudioModels{
			ImageModel:  "imagen-3.0-generate-002",
			SpeechModel: "gemini-2.5-flash-preview-tts",
			VideoModel:  "veo-2.0-generate-001",
		},
		Audio: AudioDefaults{
			InputSampleRate:  16000,
			OutputSampleRate: 24000,
			BlockSize:        4096,
			LevelDecay:       0.7,
			VideoFPS:         4,
		},
	}
}

// LoadProfile reads a YAML profile from path and fills unset fields from
// DefaultProfile. An empty path returns the default profile.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read profile: %w", err)
	}

	var loaded Profile
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return p, fmt.Errorf("config: parse profile %s: %w", path, err)
	}
	p.merge(loaded)

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p *Profile) merge(o Profile) {
	if o.Name != "" {
		p.Name = o.Name
	}
	if o.LiveModel != "" {
		p.LiveModel = o.LiveModel
	}
	if len(o.Voices) > 0 {
		p.Voices = o.Voices
		p.DefaultVoice = o.Voices[0]
	}
	if o.DefaultVoice != "" {
		p.DefaultVoice = o.DefaultVoice
	}
	for mode, prompt := range o.Prompts {
		p.Prompts[mode] = prompt
	}
	if len(o.Views) > 0 {
		p.Views = o.Views
	}
	if o.Studio.ImageModel != "" {
		p.Studio.ImageModel = o.Studio.ImageModel
	}
	if o.Studio.SpeechModel != "" {
		p.Studio.SpeechModel = o.Studio.SpeechModel
	}
	if o.Studio.VideoModel != "" {
		p.Studio.VideoModel = o.Studio.VideoModel
	}
	if o.Audio.InputSampleRate > 0 {
		p.Audio.InputSampleRate = o.Audio.InputSampleRate
	}
	if o.Audio.OutputSampleRate > 0 {
		p.Audio.OutputSampleRate = o.Audio.OutputSampleRate
	}
	if o.Audio.BlockSize > 0 {
		p.Audio.BlockSize = o.Audio.BlockSize
	}
	if o.Audio.LevelDecay > 0 {
		p.Audio.LevelDecay = o.Audio.LevelDecay
	}
	if o.Audio.VideoFPS > 0 {
		p.Audio.VideoFPS = o.Audio.VideoFPS
	}
}

// Validate checks the profile for errors.
func (p Profile) Validate() error {
	if len(p.Voices) == 0 {
		return errors.New("config: profile must list at least one voice")
	}
	if !p.HasVoice(p.DefaultVoice) {
		return fmt.Errorf("config: default voice %q is not in the voice list", p.DefaultVoice)
	}
	if p.Audio.LevelDecay <= 0 || p.Audio.LevelDecay >= 1 {
		return fmt.Errorf("config: level_decay must be in (0, 1), got %v", p.Audio.LevelDecay)
	}
	return nil
}

// HasVoice reports whether name is a registered voice.
func (p Profile) HasVoice(name string) bool {
	for _, v := range p.Voices {
		if v == name {
			return true
		}
	}
	return false
}

// Prompt returns the system prompt for the mode, falling back to "voice".
func (p Profile) Prompt(mode string) string {
	if s, ok := p.Prompts[mode]; ok {
		return s
	}
	return p.Prompts["voice"]
}
