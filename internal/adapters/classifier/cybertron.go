package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/cybertron/pkg/tasks"
	"github.com/nlpodyssey/cybertron/pkg/tasks/textclassification"
	log "github.com/sirupsen/logrus"
)

const defaultCybertronModel = "cardiffnlp/twitter-roberta-base-spam"

// Cybertron scores text with a locally converted transformer model.
// Loading converts the model on first use, which can take a while.
type Cybertron struct {
	model  textclassification.Interface
	logger *log.Entry
}

func NewCybertron(modelsDir, modelName string, logger *log.Entry) (*Cybertron, error) {
	if modelName == "" {
		modelName = defaultCybertronModel
	}
	logger.WithField("model", modelName).Info("loading spam classification model")
	model, err := tasks.Load[textclassification.Interface](&tasks.Config{
		ModelsDir:           modelsDir,
		ModelName:           modelName,
		DownloadPolicy:      tasks.DownloadMissing,
		ConversionPolicy:    tasks.ConvertMissing,
		ConversionPrecision: tasks.F32,
	})
	if err != nil {
		return nil, fmt.Errorf("load classification model: %w", err)
	}
	return &Cybertron{model: model, logger: logger}, nil
}

func (c *Cybertron) Score(ctx context.Context, text string) (float64, error) {
	result, err := c.model.Classify(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("classify text: %w", err)
	}
	for i, label := range result.Labels {
		if isSpamLabel(label) {
			return result.Scores[i], nil
		}
	}
	return 0, nil
}

func isSpamLabel(label string) bool {
	switch strings.ToLower(label) {
	case "spam", "label_1", "1":
		return true
	}
	return false
}
