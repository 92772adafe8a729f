package classifier

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/GudMeong/Anjani/internal/config"
)

// Scorer produces a spam probability in [0, 1] for a message text. The
// model behind it is opaque to the caller.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// New builds the configured scorer. A "none" type disables prediction
// for the process and returns nil without error.
func New(cfg config.Classifier, logger *log.Entry) (Scorer, error) {
	switch cfg.Type {
	case "", "none":
		logger.Info("no classifier configured, prediction disabled")
		return nil, nil
	case "cybertron":
		return NewCybertron(cfg.ModelsDir, cfg.ModelName, logger)
	case "gemini":
		return NewGemini(cfg.APIKey, cfg.ModelName, logger)
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.ModelName, cfg.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier type %q", cfg.Type)
	}
}
