package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()

	require.NoError(t, p.Validate())
	assert.Len(t, p.Voices, 5)
	assert.Equal(t, "Puck", p.DefaultVoice)
	assert.Equal(t, 16000, p.Audio.InputSampleRate)
	assert.Equal(t, 24000, p.Audio.OutputSampleRate)
	assert.Equal(t, 4096, p.Audio.BlockSize)
	assert.InDelta(t, 0.7, p.Audio.LevelDecay, 1e-9)
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	yamlDoc := `
name: tester
voices: [Kore, Aoede]
prompts:
  screen: "look at my screen"
audio:
  block_size: 2048
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	p, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "tester", p.Name)
	assert.Equal(t, []string{"Kore", "Aoede"}, p.Voices)
	assert.Equal(t, "Kore", p.DefaultVoice)
	assert.Equal(t, "look at my screen", p.Prompt("screen"))
	assert.Equal(t, DefaultProfile().Prompt("voice"), p.Prompt("voice"))
	assert.Equal(t, 2048, p.Audio.BlockSize)
	assert.Equal(t, 16000, p.Audio.InputSampleRate)
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr bool
	}{
		{name: "default", mutate: func(p *Profile) {}},
		{name: "no voices", mutate: func(p *Profile) { p.Voices = nil }, wantErr: true},
		{name: "unknown default voice", mutate: func(p *Profile) { p.DefaultVoice = "Nobody" }, wantErr: true},
		{name: "decay too high", mutate: func(p *Profile) { p.Audio.LevelDecay = 1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	_, ok := s.Get(KeyVoice)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyVoice, "Kore"))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	v, ok := reopened.Get(KeyVoice)
	assert.True(t, ok)
	assert.Equal(t, "Kore", v)
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvGeminiKey, "")
	t.Setenv(EnvGoogleKey, "google-key")

	store := NewMemoryStore()
	require.NoError(t, store.Set(KeyVoice, "Fenrir"))
	require.NoError(t, store.Set(KeyMode, "camera"))

	r := Resolve(store, DefaultProfile())
	assert.Equal(t, "Fenrir", r.Voice)
	assert.Equal(t, "camera", r.Mode)
	assert.Equal(t, "google-key", r.Credential)

	require.NoError(t, store.Set(KeyVoice, "NotAVoice"))
	r = Resolve(store, DefaultProfile())
	assert.Equal(t, "Puck", r.Voice)
}

func TestLoadEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}
