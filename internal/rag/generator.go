package rag

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitGenerator generates answers through a Genkit-registered model.
type GenkitGenerator struct {
	g           *genkit.Genkit
	modelName   string // fully qualified, e.g. "ollama/llama3.1"
	temperature float64
}

func NewGenkitGenerator(g *genkit.Genkit, modelName string, temperature float64) *GenkitGenerator {
	return &GenkitGenerator{g: g, modelName: modelName, temperature: temperature}
}

func (gg *GenkitGenerator) Generate(ctx context.Context, systemPrompt string, messages []*ai.Message) (string, error) {
	if gg.g == nil {
		return "", errors.New("rag: genkit not initialized")
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(gg.modelName),
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: gg.temperature}),
	}
	if systemPrompt != "" {
		opts = append(opts, ai.WithSystem(systemPrompt))
	}

	resp, err := genkit.Generate(ctx, gg.g, opts...)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
