// Package flags holds the CLI flags shared by vm-agent commands.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/hoststack/vm-agent/common"
	"github.com/hoststack/vm-agent/config"
)

func SetupLogger(cCtx *cli.Context, cfg *config.Config) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name) || cfg.Log.JSON
	logDebug := cCtx.Bool(LogDebugFlag.Name) || cfg.Log.Debug
	logUID := cCtx.Bool(LogUidFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: common.PackageName,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

var ConfigFlag = &cli.StringFlag{
	Name:  "config",
	Value: "/etc/vm-agent/agent.yaml",
	Usage: "path to the agent configuration file",
}

var ProvisioningTokenFlag = &cli.StringFlag{
	Name:    "provisioning-token",
	Usage:   "JWT authorizing first registration, overrides the configuration file",
	EnvVars: []string{"VM_AGENT_PROVISIONING_TOKEN"},
}

var OrchestratorURLFlag = &cli.StringFlag{
	Name:  "orchestrator-url",
	Usage: "orchestrator base URL, overrides the configuration file",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

var CommonFlags = []cli.Flag{
	ConfigFlag,
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

// DrainDuration reads the drain flag as a duration.
func DrainDuration(cCtx *cli.Context) time.Duration {
	return time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second
}
