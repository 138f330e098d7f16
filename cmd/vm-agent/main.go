package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hoststack/vm-agent/cmd/flags"
	"github.com/hoststack/vm-agent/common"
	"github.com/hoststack/vm-agent/config"
	"github.com/hoststack/vm-agent/httpserver"
	"github.com/hoststack/vm-agent/interfaces"
	"github.com/hoststack/vm-agent/secrets"
	"github.com/hoststack/vm-agent/security"
	"github.com/hoststack/vm-agent/tools"
	"github.com/hoststack/vm-agent/wscommand"
)

func main() {
	app := &cli.App{
		Name:    "vm-agent",
		Usage:   "VM management agent",
		Version: common.Version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Establish credentials and serve the agent API",
				Flags:  append([]cli.Flag{flags.PprofFlag, flags.DrainSecondsFlag, flags.OrchestratorURLFlag}, flags.CommonFlags...),
				Action: runServe,
			},
			{
				Name:   "register",
				Usage:  "Register this agent with the orchestrator",
				Flags:  append([]cli.Flag{flags.ProvisioningTokenFlag, flags.OrchestratorURLFlag}, flags.CommonFlags...),
				Action: runRegister,
			},
			{
				Name:   "info",
				Usage:  "Print the agent's identity and registration state",
				Flags:  flags.CommonFlags,
				Action: runInfo,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// bootstrap loads configuration and assembles the security context
// shared by all commands.
func bootstrap(cCtx *cli.Context) (*config.Config, *slog.Logger, *security.Context, *tools.Registry, error) {
	cfg, err := config.Load(cCtx.String(flags.ConfigFlag.Name))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if url := cCtx.String(flags.OrchestratorURLFlag.Name); url != "" {
		cfg.Orchestrator.URL = url
	}

	logger := flags.SetupLogger(cCtx, cfg)

	backend, err := secrets.NewBackendFactory(logger).BackendFor(interfaces.SecretBackendLocation(cfg.Secrets.Location))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("could not initialize secret backend: %w", err)
	}

	registry := tools.NewRegistry(&cfg.Tools, logger)
	sec := security.NewContext(backend, cfg.Orchestrator.URL, registry.Capabilities(), logger)
	return cfg, logger, sec, registry, nil
}

func runServe(cCtx *cli.Context) error {
	cfg, logger, sec, registry, err := bootstrap(cCtx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Credentials must exist before the listener starts.
	if err := sec.EnsureCredentials(ctx); err != nil {
		logger.Error("Could not establish credentials", "err", err)
		return err
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.Server.ListenAddr,
		MetricsAddr:              cfg.Server.MetricsAddr,
		EnablePprof:              cCtx.Bool(flags.PprofFlag.Name) || cfg.Server.EnablePprof,
		Log:                      logger,
		DrainDuration:            flags.DrainDuration(cCtx),
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              cfg.Server.ReadTimeout,
		WriteTimeout:             cfg.Server.WriteTime,
	}, sec, httpserver.NewHandler(sec, registry, logger))
	if err != nil {
		logger.Error("Could not create server", "err", err)
		return err
	}

	srv.RunInBackground()

	if cfg.Orchestrator.CommandChannel {
		channel := wscommand.NewChannel(cfg.Orchestrator.URL, sec, registry, logger)
		go channel.Run(ctx)
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	srv.Shutdown()
	return nil
}

func runRegister(cCtx *cli.Context) error {
	cfg, logger, sec, _, err := bootstrap(cCtx)
	if err != nil {
		return err
	}

	token := cCtx.String(flags.ProvisioningTokenFlag.Name)
	if token == "" {
		token = cfg.Orchestrator.ProvisioningToken
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cert, err := sec.Provision(ctx, token)
	if err != nil {
		logger.Error("Registration failed", "err", err, "state", sec.RegistrationState().String())
		return err
	}

	leaf, err := cert.GetX509Cert()
	if err != nil {
		return err
	}
	logger.Info("Registration complete",
		"deviceID", sec.DeviceID().String(),
		"certificateExpiry", leaf.NotAfter.Format(time.RFC3339))
	return nil
}

func runInfo(cCtx *cli.Context) error {
	_, _, sec, registry, err := bootstrap(cCtx)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := sec.EnsureCredentials(ctx); err != nil {
		return err
	}

	info := map[string]any{
		"device_id":          sec.DeviceID().String(),
		"agent_version":      common.Version,
		"registered":         sec.IsRegistered(ctx),
		"registration_state": sec.RegistrationState().String(),
		"capabilities":       registry.Capabilities(),
	}
	if binding, err := sec.TenantBinding(ctx); err == nil && binding != nil {
		info["organization_id"] = binding.OrganizationID
	}

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
