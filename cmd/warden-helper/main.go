// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command warden-helper is the privileged helper daemon. launchd runs
// it as root from /Library/PrivilegedHelperTools; it serves the
// helper.* methods on a Unix socket to the users named by --allow-uid.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/helper"
	"github.com/bureau-foundation/warden/lib/launchd"
	"github.com/bureau-foundation/warden/lib/process"
	"github.com/bureau-foundation/warden/lib/rpc"
	"github.com/bureau-foundation/warden/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	runMode    string
	homeDir    string
	coreSocket string
	mountDir   string
	binDir     string

	socketPath   string
	allowUIDs    []uint
	fuseBundle   string
	fuseInstall  string
	fuseBundleID string

	allowNonRoot bool
	verbose      bool
	showVersion  bool
}

func parseFlags(args []string) (*options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("warden-helper", pflag.ContinueOnError)
	flagSet.StringVar(&opts.runMode, "run-mode", string(config.Production), "run mode of the installation being served")
	flagSet.StringVar(&opts.homeDir, "home", "", "home directory of the installing user")
	flagSet.StringVar(&opts.coreSocket, "core-socket", "", "core service socket path")
	flagSet.StringVar(&opts.mountDir, "mount-dir", "", "filesystem mount directory")
	flagSet.StringVar(&opts.binDir, "bin-dir", "", "directory holding the bundled binaries")
	flagSet.StringVar(&opts.socketPath, "socket", "", "helper socket path (default derived from the run mode)")
	flagSet.UintSliceVar(&opts.allowUIDs, "allow-uid", nil, "user ID allowed to connect, repeatable (root is always allowed)")
	flagSet.StringVar(&opts.fuseBundle, "fuse-bundle", "", "filesystem bundle to install (default next to the bin directory)")
	flagSet.StringVar(&opts.fuseInstall, "fuse-install-path", "", "where the filesystem bundle is installed")
	flagSet.StringVar(&opts.fuseBundleID, "fuse-bundle-id", "", "kernel extension bundle identifier")
	flagSet.BoolVar(&opts.allowNonRoot, "allow-non-root", false, "run without root privileges (testing only)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return &opts, nil
}

// environment resolves the installation the helper serves. The helper
// runs as root, so the home directory must come from the job arguments
// rather than from the process.
func (o *options) environment() (*config.Environment, error) {
	mode, err := config.ParseRunMode(o.runMode)
	if err != nil {
		return nil, err
	}
	return config.Resolve(mode, config.Overrides{
		HomeDir:    o.homeDir,
		SocketPath: o.coreSocket,
		MountDir:   o.mountDir,
		BinDir:     o.binDir,
	})
}

// hostOptions derives the helper's view of the machine from env. Flags
// override the filesystem bundle paths; the mount directory and command
// link come only from env.
func (o *options) hostOptions(env *config.Environment, logger *slog.Logger) helper.HostOptions {
	name := "warden"
	if env.RunMode != config.Production {
		name += "-" + string(env.RunMode)
	}
	hostOptions := helper.HostOptions{
		Version:             version.Version,
		Logger:              logger,
		FuseBundle:          filepath.Join(filepath.Dir(env.BinDir), "Filesystems", "warden.fs"),
		FuseInstallPath:     filepath.Join("/Library/Filesystems", name+".fs"),
		FuseBundleID:        "dev.warden.filesystems." + name,
		MountDir:            env.MountDir,
		CommandLinkPath:     env.CommandLinkPath,
		CommandLinkTarget:   env.BinaryPath(config.CLIBinary),
		RedirectorPlistPath: filepath.Join(env.LaunchDaemonsDir, env.Labels.Redirector+".plist"),
		RedirectorPlist: launchd.Plist{
			Label: env.Labels.Redirector,
			ProgramArguments: []string{
				env.BinaryPath(config.FilesystemBinary),
				"redirector",
				"--run-mode", string(env.RunMode),
				"--mount", env.MountDir,
			},
			KeepAlive:         true,
			RunAtLoad:         true,
			StandardErrorPath: filepath.Join("/Library/Logs", env.Labels.Redirector+".log"),
			Comment:           "Managed by warden-helper.",
		},
	}
	if o.fuseBundle != "" {
		hostOptions.FuseBundle = o.fuseBundle
	}
	if o.fuseInstall != "" {
		hostOptions.FuseInstallPath = o.fuseInstall
	}
	if o.fuseBundleID != "" {
		hostOptions.FuseBundleID = o.fuseBundleID
	}
	return hostOptions
}

func (o *options) uids() []uint32 {
	uids := make([]uint32, 0, len(o.allowUIDs))
	for _, uid := range o.allowUIDs {
		uids = append(uids, uint32(uid))
	}
	return uids
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("warden-helper %s\n", version.Full())
		return nil
	}
	if unix.Geteuid() != 0 && !opts.allowNonRoot {
		return errors.New("warden-helper must run as root")
	}

	env, err := opts.environment()
	if err != nil {
		return err
	}
	socketPath := env.HelperSocketPath
	if opts.socketPath != "" {
		socketPath = opts.socketPath
	}

	logger := cli.NewCommandLogger(opts.verbose).With("component", "warden-helper")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(logger, rpc.ServerOptions{Authorize: helper.AllowUIDs(opts.uids()...)})
	helper.Register(server, helper.NewHost(opts.hostOptions(env, logger)), logger)

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	// Peer credentials gate every connection, so the socket itself is
	// world-connectable.
	listener, err := rpc.ListenUnix(socketPath, 0o666)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	logger.Info("helper running",
		"version", version.Version,
		"run_mode", env.RunMode,
		"socket", socketPath,
		"allowed_uids", opts.allowUIDs,
	)
	if err := server.Serve(ctx, listener); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}
