package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/bdougie/dash2gps/internal/config"
	"github.com/bdougie/dash2gps/internal/decode"
)

const visionSystemPrompt = "You are a transcription assistant. You are shown " +
	"a cropped strip from a dashcam video containing a GPS telemetry overlay. " +
	"Transcribe the text exactly as printed, character for character, on a " +
	"single line. Do not describe the image and do not add commentary."

const visionInput = "Transcribe the overlay text in this image."

// Vision recognizes the overlay by asking a local vision model to transcribe
// it. Useful on overlay fonts Tesseract struggles with, at the cost of much
// slower calls.
type Vision struct {
	agent *agent.Agent
	dir   string
}

// NewVision sets up the Ollama-backed agent. dir is a scratch directory for
// the crop files handed to the model.
func NewVision(ctx context.Context, cfg config.OCR, dir string, logger *slog.Logger) (*Vision, error) {
	log := logr.FromSlogHandler(logger.Handler())
	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  &log,
		BaseURL: cfg.OllamaURL,
		Port:    11434,
	})

	model := &core.Model{
		ID: cfg.Model,
	}
	if err := provider.UseModel(ctx, model); err != nil {
		return nil, fmt.Errorf("use model %q: %w", cfg.Model, err)
	}

	a, err := agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithSystemPrompt(visionSystemPrompt),
	)
	if err != nil {
		return nil, err
	}
	return &Vision{agent: a, dir: dir}, nil
}

func (v *Vision) Recognize(ctx context.Context, img image.Image) (Result, error) {
	data, err := decode.EncodePNG(img)
	if err != nil {
		return Result{}, fmt.Errorf("encode crop: %w", err)
	}
	path := filepath.Join(v.dir, uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Result{}, fmt.Errorf("write crop: %w", err)
	}
	defer os.Remove(path)

	response, err := v.agent.Run(
		ctx,
		agent.WithInput(visionInput),
		agent.WithImagePath(path),
	)
	if err != nil {
		return Result{}, err
	}
	if response == nil || len(response.Messages) == 0 {
		return Result{}, fmt.Errorf("no response messages received from model")
	}

	content := response.Messages[len(response.Messages)-1].Content
	return Result{Text: content, Confidence: 100}, nil
}
