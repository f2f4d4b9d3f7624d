// cmd/archmapper/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/shikhar1verma/code-architecture-mapper/internal/api"
	"github.com/shikhar1verma/code-architecture-mapper/internal/config"
	"github.com/shikhar1verma/code-architecture-mapper/internal/content"
	"github.com/shikhar1verma/code-architecture-mapper/internal/diagram"
	"github.com/shikhar1verma/code-architecture-mapper/internal/gitfetch"
	"github.com/shikhar1verma/code-architecture-mapper/internal/llm"
	"github.com/shikhar1verma/code-architecture-mapper/internal/output"
	"github.com/shikhar1verma/code-architecture-mapper/internal/service"
	"github.com/shikhar1verma/code-architecture-mapper/internal/store"
	"github.com/shikhar1verma/code-architecture-mapper/internal/workflow"
)

var (
	version = "dev"

	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:     "archmapper",
		Short:   "Analyze a repository's architecture and generate diagrams",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAnalyzeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the wired collaborators.
type app struct {
	cfg     *config.Config
	store   *store.Store
	service *service.Service
	runner  *workflow.Runner
}

// buildApp constructs the dependency objects threaded through the runner.
func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.ResolveAPIKey(cfg.LLM.APIKeySource, cfg.LLM.APIKey, "GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	gateway := llm.NewGateway(llm.NewGeminiProvider(cfg.LLM.BaseURL, apiKey), llm.Options{
		Models:            cfg.LLM.ModelFallback,
		AttemptsPerModel:  cfg.LLM.MaxAttemptsPerModel,
		RetryMinDelay:     cfg.LLM.RetryMinDelay.Std(),
		RetryMaxDelay:     cfg.LLM.RetryMaxDelay.Std(),
		CallTimeout:       cfg.LLM.CallTimeout.Std(),
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
	gen := content.NewGenerator(gateway, cfg.Analysis.ComponentCount)
	loop := diagram.NewLoop(gen, cfg.Analysis.DiagramMaxAttempts)
	fetcher := gitfetch.NewFetcher(cfg.Analysis.WorkDir)
	runner := workflow.NewRunner(st, fetcher, gen, gateway, loop, cfg.Analysis)
	svc := service.New(st, runner, loop, cfg.Analysis)

	return &app{cfg: cfg, store: st, service: svc, runner: runner}, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			srv := api.NewServer(a.service)
			log.Info("listening", "addr", a.cfg.Server.Addr)
			return http.ListenAndServe(a.cfg.Server.Addr, srv.Router())
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var forceRefresh bool

	cmd := &cobra.Command{
		Use:   "analyze <repo-url>",
		Short: "Analyze a repository and print the architecture overview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			repoURL := args[0]
			ctx := context.Background()

			if !forceRefresh {
				if info, err := a.store.LookupLatestByURL(ctx, repoURL); err == nil && info.Status == store.StatusCompleted {
					log.Info("serving cached analysis", "run", info.ID, "cached_at", info.UpdatedAt)
					return printResults(a, ctx, info.ID)
				}
			}

			runID, err := a.store.CreateRun(ctx, repoURL)
			if err != nil {
				return err
			}
			if err := a.runner.Run(ctx, runID, repoURL); err != nil {
				return err
			}
			return printResults(a, ctx, runID)
		},
	}
	cmd.Flags().BoolVar(&forceRefresh, "refresh", false, "ignore cached results")
	return cmd
}

func printResults(a *app, ctx context.Context, runID string) error {
	results, err := a.service.Result(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Print(output.RenderMarkdown(results.Artifacts.ArchitectureMD))
	fmt.Println()
	fmt.Print(output.Summary(results))
	return nil
}
