package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/fusional/fusional/agent"
	"github.com/fusional/fusional/config"
	"github.com/fusional/fusional/executor"
	"github.com/fusional/fusional/logger"
	"github.com/fusional/fusional/mcpserver"
	"github.com/fusional/fusional/metrics"
	"github.com/fusional/fusional/registry"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Metrics
			prometheus.NewRegistry,
			metrics.NewExecutionMetrics,

			// Execution engine
			executor.NewValidatorFromConfig,
			executor.NewEngineFromConfig,
			func(e *executor.Engine) mcpserver.SandboxEngine { return e },

			// Server catalog
			func(cfg *config.Config, log *zap.Logger) (*registry.Registry, error) {
				return registry.Open(log, cfg.Registry.Path)
			},

			// Code-generation agent (absent when no API key is configured)
			newGenerator,

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			serveMetrics,
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

// newGenerator wires the code-generation agent when an API key is present.
// Without one the generate_server tool reports itself unconfigured.
func newGenerator(cfg *config.Config, log *zap.Logger, validator *executor.Validator, engine *executor.Engine) mcpserver.Generator {
	if cfg.Agent.APIKey == "" {
		return nil
	}
	client := agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.APIKey, cfg.Agent.Model)
	return agent.NewGenerator(log, client, validator, engine, cfg.Agent.OutputDir)
}

// serveMetrics exposes the Prometheus registry when a metrics port is set.
func serveMetrics(cfg *config.Config, log *zap.Logger, reg *prometheus.Registry) {
	if cfg.Server.MetricsPort <= 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
	log.Info("starting metrics listener", zap.String("addr", addr))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics listener failed", zap.Error(err))
		}
	}()
}
