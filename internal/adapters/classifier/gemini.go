package classifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash-lite"

const scorerPrompt = "You are a spam detection system. " +
	"Reply with a single number between 0 and 1: the probability that the following message is spam. " +
	"Consider advertising, scams, and inappropriate content as spam. Reply with the number only."

// Gemini scores text with a Gemini generative model.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *log.Entry
}

func NewGemini(apiKey, model string, logger *log.Entry) (*Gemini, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	generativeModel := client.GenerativeModel(model)
	generativeModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(scorerPrompt)},
	}
	generativeModel.ResponseMIMEType = "text/plain"
	return &Gemini{
		client: client,
		model:  generativeModel,
		logger: logger,
	}, nil
}

func (g *Gemini) Score(ctx context.Context, text string) (float64, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return 0, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return 0, fmt.Errorf("no response candidates available")
	}
	response := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		response += fmt.Sprintf("%v", part)
	}
	return parseProbability(response)
}

func parseProbability(response string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(response), 64)
	if err != nil {
		return 0, fmt.Errorf("parse probability %q: %w", response, err)
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value, nil
}
