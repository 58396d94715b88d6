package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Validate checks all settings and returns the first violation. Called by
// Load so that invalid configuration never reaches component construction.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProjectName) == "" {
		return ErrMissingProjectName
	}

	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return ErrInvalidModelName
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 65536 {
		return fmt.Errorf("%w: %d not in [1, 65536]", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size %d < 1", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: embed_batch_size %d < 1", ErrInvalidChunking, c.EmbedBatchSize)
	}
	if c.RetrievalTopK < 1 {
		return fmt.Errorf("%w: retrieval_top_k %d < 1", ErrInvalidContextBudget, c.RetrievalTopK)
	}
	if c.MaxContextTokens < 1 {
		return fmt.Errorf("%w: max_context_tokens %d < 1", ErrInvalidContextBudget, c.MaxContextTokens)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	// Confluence is optional, but a half-configured connection is a
	// misconfiguration, not a disabled one.
	cc := c.Confluence
	if (cc.URL != "" || cc.Username != "" || cc.Token != "") && !cc.Enabled() {
		return ErrIncompleteConfluence
	}

	return nil
}

// MarshalJSON masks sensitive fields so the config can be logged or exposed
// over the status API without leaking secrets.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // drop methods to avoid recursion
	masked := alias(c)
	if masked.GeminiAPIKey != "" {
		masked.GeminiAPIKey = "***"
	}
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	if masked.Confluence.Token != "" {
		masked.Confluence.Token = "***"
	}
	return json.Marshal(masked)
}
