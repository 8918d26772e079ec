// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/component"
	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/helper"
	"github.com/bureau-foundation/warden/lib/installer"
	"github.com/bureau-foundation/warden/lib/rpc"
	"github.com/bureau-foundation/warden/lib/version"
)

func root() *cli.Command {
	return &cli.Command{
		Name: "warden",
		Description: `warden installs, upgrades, and supervises the background components
of a Warden installation.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			installCommand(),
			lifecycleCommand(component.OperationUninstall, "Remove components", (*installer.Manager).Uninstall),
			lifecycleCommand(component.OperationStart, "Start installed components", (*installer.Manager).Start),
			lifecycleCommand(component.OperationStop, "Stop running components", (*installer.Manager).Stop),
			callCommand(),
			envCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("warden %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// globalFlags select and adjust the environment. Every command that
// touches the machine accepts them.
type globalFlags struct {
	runMode    string
	configPath string
	homeDir    string
	socketPath string
	mountDir   string
	binDir     string
	verbose    bool
}

func (g *globalFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&g.runMode, "run-mode", "", "run mode: production, staging, devel, or custom (default from config, else production)")
	flagSet.StringVar(&g.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	flagSet.StringVar(&g.homeDir, "home", "", "home directory to install for")
	flagSet.StringVar(&g.socketPath, "socket", "", "core service socket path")
	flagSet.StringVar(&g.mountDir, "mount-dir", "", "filesystem mount directory")
	flagSet.StringVar(&g.binDir, "bin-dir", "", "directory holding the bundled binaries")
	flagSet.BoolVarP(&g.verbose, "verbose", "v", false, "log debug output")
}

// environment loads the config file and resolves the run mode, with
// flags taking precedence over the file.
func (g *globalFlags) environment() (*config.Environment, error) {
	var file *config.File
	var err error
	if g.configPath != "" {
		file, err = config.LoadFile(g.configPath)
	} else {
		file, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	modeName := g.runMode
	if modeName == "" {
		modeName = file.RunMode
	}
	mode := config.Production
	if modeName != "" {
		if mode, err = config.ParseRunMode(modeName); err != nil {
			return nil, err
		}
	}

	fromFile, err := file.Overrides(mode)
	if err != nil {
		return nil, err
	}
	return config.Resolve(mode, fromFile.Merge(config.Overrides{
		HomeDir:    g.homeDir,
		SocketPath: g.socketPath,
		MountDir:   g.mountDir,
		BinDir:     g.binDir,
	}))
}

// helperCallTimeout bounds each privileged helper call. Installing the
// kernel extension is the slowest of them.
const helperCallTimeout = 2 * time.Minute

// session is everything one command invocation needs to operate on
// components.
type session struct {
	env        *config.Environment
	logger     *slog.Logger
	helper     *helper.Client
	manager    *installer.Manager
	components []component.Installable
}

// openSession resolves the environment and builds the components
// named in names, or all of them.
func openSession(flags *globalFlags, names []string) (*session, error) {
	env, err := flags.environment()
	if err != nil {
		return nil, err
	}
	logger := cli.NewCommandLogger(flags.verbose).With("run_mode", string(env.RunMode))

	kinds := make([]component.Kind, 0, len(names))
	for _, name := range names {
		kind, err := component.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}

	helperClient := helper.NewClient(rpc.UnixDialer(env.HelperSocketPath), rpc.TransportOptions{
		Logger:      logger.With("peer", "helper"),
		CallTimeout: helperCallTimeout,
	})
	components, err := component.Build(env, component.Dependencies{
		Helper: helperClient,
		Logger: logger,
	}, kinds...)
	if err != nil {
		helperClient.Close()
		return nil, err
	}
	return &session{
		env:        env,
		logger:     logger,
		helper:     helperClient,
		manager:    installer.NewManager(installer.ManagerOptions{Logger: logger}),
		components: components,
	}, nil
}

func (s *session) Close() error {
	return s.helper.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM so a long install
// stops between ranks instead of being killed mid-write.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
