package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rajarajane97/mastt/internal/agent"
	"github.com/rajarajane97/mastt/internal/analysis"
	"github.com/rajarajane97/mastt/internal/document"
	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/server"
	"github.com/rajarajane97/mastt/internal/team"
	"github.com/rajarajane97/mastt/internal/workflow"
)

// BuildTeam assembles one run: a run logger, the orchestrator over outputDir,
// and one agent per pipeline role. The returned close function releases the
// run's output-directory lock and log file.
func (a *App) BuildTeam(projectName, outputDir string) (*team.Team, func() error, error) {
	cfg := a.Config
	if cfg.RepositoryPath == "" {
		return nil, nil, fmt.Errorf("repository path is required")
	}

	logger, logCloser, err := log.NewRunLogger(filepath.Join(outputDir, "logs"), log.Config{})
	if err != nil {
		return nil, nil, err
	}

	deps := workflow.Deps{
		Analyzer:  analysis.New(cfg.RepositoryPath, logger),
		Processor: document.NewProcessor(logger),
		Engine:    a.Engine,
		Logger:    logger,
	}
	// NewConfluence returns nil when the integration is not configured; the
	// interface field must stay nil in that case, not hold a typed nil.
	if confluence := document.NewConfluence(cfg.Confluence, a.limiter, logger); confluence != nil {
		deps.Confluence = confluence
	}

	orc, err := workflow.New(workflow.Config{
		ProjectName:      projectName,
		OutputDir:        outputDir,
		DocumentPaths:    cfg.DocumentPaths,
		ConfluenceSpace:  cfg.Confluence.SpaceKey,
		MaxContextTokens: cfg.MaxContextTokens,
	}, deps)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, err
	}

	agents, err := a.buildAgents(logger)
	if err != nil {
		_ = orc.Close()
		_ = logCloser.Close()
		return nil, nil, err
	}

	tm, err := team.New(orc, agents, logger)
	if err != nil {
		_ = orc.Close()
		_ = logCloser.Close()
		return nil, nil, err
	}

	return tm, closeRun(orc, logCloser), nil
}

func (a *App) buildAgents(logger log.Logger) (map[agent.Role]*agent.Agent, error) {
	cfg := agent.Config{
		Genkit:      a.Genkit,
		ModelName:   qualifyModel(a.Config.ModelName),
		Logger:      logger,
		RateLimiter: a.limiter,
		Temperature: a.Config.Temperature,
		MaxTokens:   int32(a.Config.MaxTokens),
	}

	agents := make(map[agent.Role]*agent.Agent, len(agent.Roles()))
	for _, role := range agent.Roles() {
		ag, err := agent.New(role, cfg)
		if err != nil {
			return nil, err
		}
		agents[role] = ag
	}
	return agents, nil
}

func closeRun(orc *workflow.Orchestrator, logCloser io.Closer) func() error {
	return func() error {
		err := orc.Close()
		if cerr := logCloser.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}
}

// RunnerFactory adapts BuildTeam to the HTTP server's Factory contract.
func (a *App) RunnerFactory() server.Factory {
	return func(ctx context.Context, projectName, outputDir string) (server.Runner, func() error, error) {
		tm, closeFn, err := a.BuildTeam(projectName, outputDir)
		if err != nil {
			return nil, nil, err
		}
		return tm, closeFn, nil
	}
}
