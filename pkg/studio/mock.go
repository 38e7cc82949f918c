package studio

import (
	"context"
	"sync"
)

// MockProvider is a Provider for testing.
type MockProvider struct {
	mu sync.Mutex

	ImagesFunc func(ctx context.Context, model, prompt string, n int, aspect string) ([]Asset, error)
	SpeechFunc func(ctx context.Context, model, text, voice string) ([]byte, string, error)
	VideoFunc  func(ctx context.Context, model, prompt, aspect string) (VideoJob, error)

	// Prompts records every image prompt in call order.
	Prompts []string

	// Aspects records the aspect ratio of every image or video request.
	Aspects []string
}

// GenerateImages implements Provider.
func (m *MockProvider) GenerateImages(ctx context.Context, model, prompt string, n int, aspect string) ([]Asset, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.Aspects = append(m.Aspects, aspect)
	m.mu.Unlock()

	if m.ImagesFunc != nil {
		return m.ImagesFunc(ctx, model, prompt, n, aspect)
	}
	out := make([]Asset, n)
	for i := range out {
		out[i] = Asset{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	}
	return out, nil
}

// GenerateSpeech implements Provider.
func (m *MockProvider) GenerateSpeech(ctx context.Context, model, text, voice string) ([]byte, string, error) {
	if m.SpeechFunc != nil {
		return m.SpeechFunc(ctx, model, text, voice)
	}
	return make([]byte, 480), "audio/L16;codec=pcm;rate=24000", nil
}

// StartVideo implements Provider.
func (m *MockProvider) StartVideo(ctx context.Context, model, prompt, aspect string) (VideoJob, error) {
	m.mu.Lock()
	m.Aspects = append(m.Aspects, aspect)
	m.mu.Unlock()

	if m.VideoFunc != nil {
		return m.VideoFunc(ctx, model, prompt, aspect)
	}
	return &MockVideoJob{ReadyAfter: 1, Video: Asset{MIMEType: "video/mp4", Data: []byte("mp4")}}, nil
}

// MockVideoJob finishes after ReadyAfter polls. A ReadyAfter of 0 never finishes.
type MockVideoJob struct {
	mu sync.Mutex

	ReadyAfter int
	Video      Asset
	Err        error

	polls int
}

// Name implements VideoJob.
func (j *MockVideoJob) Name() string { return "mock-video" }

// Poll implements VideoJob.
func (j *MockVideoJob) Poll(ctx context.Context) (bool, Asset, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.polls++
	if j.Err != nil {
		return false, Asset{}, j.Err
	}
	if j.ReadyAfter > 0 && j.polls >= j.ReadyAfter {
		return true, j.Video, nil
	}
	return false, Asset{}, nil
}

// Polls returns how many times Poll was called.
func (j *MockVideoJob) Polls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.polls
}
