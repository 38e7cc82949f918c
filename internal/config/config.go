// Package config provides configuration helpers for go-murmur commands.
//
// Configuration comes from three places: environment variables (optionally
// loaded from a .env file), a YAML assistant profile holding models, voices
// and per-mode system prompts, and a small persisted Store for user choices
// such as the selected voice.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvGeminiKey  = "GEMINI_API_KEY"
	EnvGoogleKey  = "GOOGLE_API_KEY"
	EnvProfile    = "MURMUR_PROFILE"
	EnvStatePath  = "MURMUR_STATE"
	EnvLogLevel   = "MURMUR_LOG_LEVEL"
	EnvListenAddr = "MURMUR_LISTEN"

	EnvGoogleClientID     = "GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "GOOGLE_CLIENT_SECRET"
)

// Default values.
const (
	DefaultListenAddr = ":8080"
	DefaultLogLevel   = "info"
)

// Store keys used for persisted user choices.
const (
	KeyVoice = "voice"
	KeyMode  = "mode"
)

// ErrMissingCredential is returned by Resolve when no API key is configured.
var ErrMissingCredential = errors.New("config: no API key configured (set GEMINI_API_KEY)")

// LoadEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// APIKey returns the Gemini API key from GEMINI_API_KEY, falling back to
// GOOGLE_API_KEY. Empty if neither is set.
func APIKey() string {
	if key := os.Getenv(EnvGeminiKey); key != "" {
		return key
	}
	return os.Getenv(EnvGoogleKey)
}

// Getenv returns the env var value or def when unset.
func Getenv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// Resolved is what the core needs at session start.
type Resolved struct {
	Mode       string
	Voice      string
	Credential string
}

// Resolve combines persisted choices, profile defaults and the credential.
// The credential may be empty; callers decide whether that is fatal so the
// error can be reported before any device is touched.
func Resolve(store Store, profile Profile) Resolved {
	r := Resolved{
		Mode:       "voice",
		Voice:      profile.DefaultVoice,
		Credential: APIKey(),
	}
	if store == nil {
		return r
	}
	if v, ok := store.Get(KeyVoice); ok && profile.HasVoice(v) {
		r.Voice = v
	}
	if m, ok := store.Get(KeyMode); ok && m != "" {
		r.Mode = m
	}
	return r
}
