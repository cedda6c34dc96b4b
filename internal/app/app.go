// Package app wires configuration into a ready Core for the binaries.
package app

import (
	"fmt"
	"log/slog"

	"tradejournal/internal/config"
	"tradejournal/pkg/tradejournal"
)

// OpenCore resolves the database path and model provider from the
// environment and opens the journal.
func OpenCore(logger *slog.Logger) (*tradejournal.Core, error) {
	dbPath, err := config.GetDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	llm, err := config.LoadLLMConfig()
	if err != nil {
		return nil, err
	}
	provider, err := tradejournal.NewModelProvider(tradejournal.ProviderConfig{
		Provider: llm.Provider,
		Model:    llm.Model,
		BaseURL:  llm.BaseURL,
		APIKey:   llm.APIKey,
		Timeout:  llm.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	core, err := tradejournal.OpenWithOptions(tradejournal.Options{
		DBPath:              dbPath,
		Logger:              logger,
		Provider:            provider,
		MaxAnalysisAttempts: llm.MaxAttempts,
		ProviderTimeout:     llm.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	logger.Info("journal opened", "db_path", dbPath, "provider", provider.Name())
	return core, nil
}
