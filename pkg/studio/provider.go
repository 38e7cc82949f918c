// Package studio runs one-shot generations against the hosted model:
// images, video thumbnails, speech rendered as WAV, and video.
//
// Example usage:
//
//	provider, _ := studio.NewGenAI(ctx, studio.WithAPIKey(os.Getenv("GEMINI_API_KEY")))
//	s := studio.New(provider)
//
//	asset, _ := s.Speech(ctx, studio.SpeechRequest{Text: "Hello", Voice: "Puck"})
//	// asset.Data is a complete WAV file
//
// Generations are not retried; callers decide whether to try again.
package studio

import (
	"context"
)

// Provider is the generation backend.
type Provider interface {
	// GenerateImages returns n encoded images for prompt.
	GenerateImages(ctx context.Context, model, prompt string, n int, aspect string) ([]Asset, error)

	// GenerateSpeech returns raw PCM16 speech and its MIME type, such as
	// "audio/L16;rate=24000".
	GenerateSpeech(ctx context.Context, model, text, voice string) ([]byte, string, error)

	// StartVideo begins a long-running video generation.
	StartVideo(ctx context.Context, model, prompt, aspect string) (VideoJob, error)
}

// VideoJob is a running video generation.
type VideoJob interface {
	// Poll refreshes the job. It returns the finished video when done.
	Poll(ctx context.Context) (done bool, video Asset, err error)

	// Name identifies the job for logs.
	Name() string
}

// Asset is one generated artifact.
type Asset struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data,omitempty"`

	// URI locates the artifact when the provider does not inline it.
	URI string `json:"uri,omitempty"`
}
