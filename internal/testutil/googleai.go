package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/rajarajane97/mastt/internal/config"
	"github.com/rajarajane97/mastt/internal/log"
)

// GoogleAISetup contains the resources integration tests need for real
// Google AI API access.
type GoogleAISetup struct {
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Logger   log.Logger
}

// SetupGoogleAI initializes Genkit with the Google AI plugin and returns the
// default embedder. The test is skipped when GEMINI_API_KEY is not set, so
// the integration suite degrades cleanly on machines without credentials.
func SetupGoogleAI(t *testing.T) *GoogleAISetup {
	t.Helper()

	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set, skipping Google AI integration test")
	}

	g := genkit.Init(context.Background(), genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		t.Fatal("Failed to initialize Genkit with googleai plugin")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, config.DefaultEmbedderModel)
	if embedder == nil {
		t.Fatalf("Embedder %q not found", config.DefaultEmbedderModel)
	}

	return &GoogleAISetup{
		Genkit:   g,
		Embedder: embedder,
		Logger:   log.NewNop(),
	}
}
