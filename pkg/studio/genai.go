package studio

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/teslashibe/go-murmur/internal/httpc"
)

// GenAI is a Provider backed by the Gemini API.
type GenAI struct {
	client *genai.Client
}

// NewGenAI creates a Gemini-backed provider. WithAPIKey is required.
func NewGenAI(ctx context.Context, opts ...Option) (*GenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = httpc.NewClient(httpc.GenerationTimeout)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("studio: create client: %w", err)
	}
	return &GenAI{client: client}, nil
}

// GenerateImages implements Provider.
func (g *GenAI) GenerateImages(ctx context.Context, model, prompt string, n int, aspect string) ([]Asset, error) {
	resp, err := g.client.Models.GenerateImages(ctx, model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(n),
		AspectRatio:    aspect,
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, err
	}

	assets := make([]Asset, 0, len(resp.GeneratedImages))
	for _, gi := range resp.GeneratedImages {
		if gi == nil || gi.Image == nil {
			continue
		}
		mime := gi.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		assets = append(assets, Asset{MIMEType: mime, Data: gi.Image.ImageBytes, URI: gi.Image.GCSURI})
	}
	return assets, nil
}

// GenerateSpeech implements Provider.
func (g *GenAI) GenerateSpeech(ctx context.Context, model, text, voice string) ([]byte, string, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, "", ErrNoResult
	}

	var pcm []byte
	var mime string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil {
			continue
		}
		if mime == "" {
			mime = part.InlineData.MIMEType
		}
		pcm = append(pcm, part.InlineData.Data...)
	}
	return pcm, mime, nil
}

// StartVideo implements Provider.
func (g *GenAI) StartVideo(ctx context.Context, model, prompt, aspect string) (VideoJob, error) {
	op, err := g.client.Models.GenerateVideos(ctx, model, prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    aspect,
	})
	if err != nil {
		return nil, err
	}
	return &genaiVideoJob{client: g.client, op: op}, nil
}

type genaiVideoJob struct {
	client *genai.Client
	op     *genai.GenerateVideosOperation
}

func (j *genaiVideoJob) Name() string { return j.op.Name }

func (j *genaiVideoJob) Poll(ctx context.Context) (bool, Asset, error) {
	if !j.op.Done {
		op, err := j.client.Operations.GetVideosOperation(ctx, j.op, nil)
		if err != nil {
			return false, Asset{}, err
		}
		j.op = op
	}
	if !j.op.Done {
		return false, Asset{}, nil
	}
	if len(j.op.Error) > 0 {
		return true, Asset{}, fmt.Errorf("video operation %s failed: %v", j.op.Name, j.op.Error)
	}
	if j.op.Response == nil || len(j.op.Response.GeneratedVideos) == 0 {
		return true, Asset{}, ErrNoResult
	}

	v := j.op.Response.GeneratedVideos[0].Video
	if v == nil {
		return true, Asset{}, ErrNoResult
	}
	mime := v.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	return true, Asset{MIMEType: mime, Data: v.VideoBytes, URI: v.URI}, nil
}
