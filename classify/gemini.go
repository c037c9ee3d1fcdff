package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"SortyxServer/logger"
)

// AttemptTimeout bounds one cloud model attempt, upload and generation
// included. A timed-out attempt counts as that model failing and the next
// candidate is tried.
const AttemptTimeout = 12 * time.Second

const geminiEndpoint = "https://generativelanguage.googleapis.com"

// GeminiClient talks to the Gemini REST API: upload the image as a file,
// generate content against candidate models in order, delete the upload
// afterwards whether or not generation succeeded.
type GeminiClient struct {
	client *resty.Client
	apiKey string
}

// NewGeminiClient builds the client. An empty key is allowed; Classify then
// fails immediately and the arbiter falls back.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		client: resty.New().SetBaseURL(geminiEndpoint).SetTimeout(AttemptTimeout),
		apiKey: apiKey,
	}
}

// SetEndpoint points the client at a different API host (tests).
func (g *GeminiClient) SetEndpoint(base string) {
	g.client.SetBaseURL(base)
}

// Configured reports whether an API key is present.
func (g *GeminiClient) Configured() bool {
	return g != nil && g.apiKey != ""
}

type uploadedFile struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type uploadResponse struct {
	File uploadedFile `json:"file"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopP            float32 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Classify tries the candidate models in order and returns the first
// non-empty response text.
func (g *GeminiClient) Classify(ctx context.Context, imageJPEG []byte, prompt string, models []string) (string, error) {
	if !g.Configured() {
		return "", errors.New("gemini api key not configured")
	}

	for _, model := range models {
		text, err := g.tryModel(ctx, model, imageJPEG, prompt)
		if err != nil {
			logger.Log().Warn("gemini model attempt failed",
				zap.String("model", model), zap.Error(err))
			continue
		}
		if text != "" {
			logger.Log().Info("gemini classification succeeded", zap.String("model", model))
			return text, nil
		}
	}
	return "", errors.New("all gemini models failed")
}

func (g *GeminiClient) tryModel(ctx context.Context, model string, imageJPEG []byte, prompt string) (string, error) {
	file, err := g.upload(ctx, imageJPEG)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	// The uploaded artifact is removed after use regardless of outcome.
	defer g.deleteFile(file.Name)

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{
			{Text: prompt},
			{FileData: &fileData{MimeType: "image/jpeg", FileURI: file.URI}},
		}}},
		GenerationConfig: generationConfig{
			Temperature:     0.4,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 1024,
		},
	}

	var genResp generateResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", g.apiKey).
		SetBody(reqBody).
		SetResult(&genResp).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", model))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("generate: %s: %s", resp.Status(), resp.String())
	}

	for _, cand := range genResp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", nil
}

func (g *GeminiClient) upload(ctx context.Context, imageJPEG []byte) (uploadedFile, error) {
	var uploadResp uploadResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/jpeg").
		SetHeader("X-Goog-Upload-Protocol", "raw").
		SetQueryParam("key", g.apiKey).
		SetBody(imageJPEG).
		SetResult(&uploadResp).
		Post("/upload/v1beta/files")
	if err != nil {
		return uploadedFile{}, err
	}
	if resp.IsError() {
		return uploadedFile{}, fmt.Errorf("%s: %s", resp.Status(), resp.String())
	}
	if uploadResp.File.URI == "" {
		return uploadedFile{}, errors.New("upload response missing file uri")
	}
	return uploadResp.File, nil
}

func (g *GeminiClient) deleteFile(name string) {
	if name == "" {
		return
	}
	_, err := g.client.R().
		SetQueryParam("key", g.apiKey).
		Delete("/v1beta/" + name)
	if err != nil {
		logger.Log().Warn("gemini file cleanup failed", zap.String("file", name), zap.Error(err))
	}
}
