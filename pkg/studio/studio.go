package studio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-murmur/pkg/audioio"
)

// Aspect ratios accepted by image and video requests.
const (
	AspectSquare    = "1:1"
	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
)

const previewText = "Hi! This is how I sound. Pick me if you like this voice."

// ImageRequest asks for one or more images.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Aspect string `json:"aspect"`
	Count  int    `json:"count"`
}

// ThumbnailRequest asks for a video thumbnail.
type ThumbnailRequest struct {
	Title string `json:"title"`
	Style string `json:"style"`
}

// SpeechRequest asks for spoken text.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// VideoRequest asks for a short video.
type VideoRequest struct {
	Prompt string `json:"prompt"`
	Aspect string `json:"aspect"`
}

// Studio runs generations through a Provider.
type Studio struct {
	provider Provider
	cfg      *Config
	logger   *slog.Logger
}

// New creates a Studio.
func New(provider Provider, opts ...Option) *Studio {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Studio{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With("component", "studio"),
	}
}

// Images generates req.Count images (1 to 4).
func (s *Studio) Images(ctx context.Context, req ImageRequest) ([]Asset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	n := min(max(req.Count, 1), 4)
	aspect, err := aspectOr(req.Aspect, AspectSquare)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	images, err := s.provider.GenerateImages(ctx, s.cfg.ImageModel, prompt, n, aspect)
	if err != nil {
		return nil, &GenerationError{Op: "image", Err: err}
	}
	if len(images) == 0 {
		return nil, &GenerationError{Op: "image", Err: ErrNoResult}
	}

	s.logger.Info("images generated", "count", len(images), "aspect", aspect, "duration", time.Since(start))
	return images, nil
}

// Thumbnail generates one landscape thumbnail for a video title.
func (s *Studio) Thumbnail(ctx context.Context, req ThumbnailRequest) (Asset, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Asset{}, ErrEmptyPrompt
	}

	images, err := s.provider.GenerateImages(ctx, s.cfg.ImageModel, ThumbnailPrompt(title, req.Style), 1, AspectLandscape)
	if err != nil {
		return Asset{}, &GenerationError{Op: "thumbnail", Err: err}
	}
	if len(images) == 0 {
		return Asset{}, &GenerationError{Op: "thumbnail", Err: ErrNoResult}
	}
	return images[0], nil
}

// ThumbnailPrompt builds the image prompt for a thumbnail.
func ThumbnailPrompt(title, style string) string {
	var b strings.Builder
	b.WriteString("An eye-catching video thumbnail for a video titled \"")
	b.WriteString(title)
	b.WriteString("\". Bold composition, high contrast, no small text.")
	if style = strings.TrimSpace(style); style != "" {
		b.WriteString(" Style: ")
		b.WriteString(style)
		b.WriteString(".")
	}
	return b.String()
}

// Speech renders text in voice and returns it as a WAV file.
func (s *Studio) Speech(ctx context.Context, req SpeechRequest) (Asset, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Asset{}, ErrEmptyPrompt
	}

	pcm, mime, err := s.provider.GenerateSpeech(ctx, s.cfg.SpeechModel, text, req.Voice)
	if err != nil {
		return Asset{}, &GenerationError{Op: "speech", Err: err}
	}
	if len(pcm) == 0 {
		return Asset{}, &GenerationError{Op: "speech", Err: ErrNoResult}
	}

	// A trailing odd byte cannot form a sample.
	pcm = pcm[:len(pcm)&^1]
	rate := audioio.ParseSampleRate(mime, audioio.OutputSampleRate)
	wav, err := audioio.PCMToContainer(pcm, rate, 1, 16)
	if err != nil {
		return Asset{}, &GenerationError{Op: "speech", Err: err}
	}

	s.logger.Debug("speech generated", "voice", req.Voice, "bytes", len(pcm), "rate", rate)
	return Asset{MIMEType: "audio/wav", Data: wav}, nil
}

// VoicePreview renders a short sample sentence in voice.
func (s *Studio) VoicePreview(ctx context.Context, voice string) (Asset, error) {
	return s.Speech(ctx, SpeechRequest{Text: previewText, Voice: voice})
}

// Video starts a video generation and polls until it finishes, ctx ends
// or the video timeout elapses.
func (s *Studio) Video(ctx context.Context, req VideoRequest) (Asset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Asset{}, ErrEmptyPrompt
	}
	aspect, err := aspectOr(req.Aspect, AspectLandscape)
	if err != nil {
		return Asset{}, err
	}

	if s.cfg.VideoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.VideoTimeout)
		defer cancel()
	}

	job, err := s.provider.StartVideo(ctx, s.cfg.VideoModel, prompt, aspect)
	if err != nil {
		return Asset{}, &GenerationError{Op: "video", Err: err}
	}
	s.logger.Info("video generation started", "job", job.Name(), "aspect", aspect)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		done, video, err := job.Poll(ctx)
		if err != nil {
			return Asset{}, &GenerationError{Op: "video", Err: err}
		}
		if done {
			if len(video.Data) == 0 && video.URI == "" {
				return Asset{}, &GenerationError{Op: "video", Err: ErrNoResult}
			}
			s.logger.Info("video generation finished", "job", job.Name(), "polls", polls)
			return video, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return Asset{}, &GenerationError{Op: "video", Err: ErrTimeout}
			}
			return Asset{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func aspectOr(aspect, def string) (string, error) {
	switch aspect {
	case "":
		return def, nil
	case AspectSquare, AspectLandscape, AspectPortrait, "4:3", "3:4":
		return aspect, nil
	default:
		return "", fmt.Errorf("studio: unsupported aspect ratio %q", aspect)
	}
}
