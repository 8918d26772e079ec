// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/warden/lib/rpc"
)

// Register serves actions on server under the helper method names.
// Mutating requests are logged at info level, queries at debug.
func Register(server *rpc.Server, actions Actions, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	noArgs := func(method string, run func(ctx context.Context) (any, error)) {
		server.Handle(method, func(ctx context.Context, _ any) (any, error) {
			result, err := run(ctx)
			logResult(logger, method, "", err)
			return result, encodeError(err)
		})
	}
	withPath := func(method string, run func(ctx context.Context, path string) error) {
		server.Handle(method, func(ctx context.Context, params any) (any, error) {
			var request pathRequest
			if err := rpc.Argument(params, &request); err != nil {
				return nil, err
			}
			err := run(ctx, request.Path)
			logResult(logger, method, request.Path, err)
			return nil, encodeError(err)
		})
	}
	unit := func(run func(ctx context.Context) error) func(ctx context.Context) (any, error) {
		return func(ctx context.Context) (any, error) { return nil, run(ctx) }
	}

	noArgs(MethodVersion, func(ctx context.Context) (any, error) {
		version, err := actions.Version(ctx)
		if err != nil {
			return nil, err
		}
		return rpc.Params(versionResult{Version: version})
	})
	noArgs(MethodFuseStatus, func(ctx context.Context) (any, error) {
		status, err := actions.FuseStatus(ctx)
		if err != nil {
			return nil, err
		}
		return rpc.Params(status)
	})
	noArgs(MethodFuseInstall, unit(actions.InstallFuse))
	noArgs(MethodFuseUninstall, unit(actions.UninstallFuse))
	noArgs(MethodFuseLoad, unit(actions.LoadFuse))
	noArgs(MethodFuseUnload, unit(actions.UnloadFuse))

	server.Handle(MethodMountCreate, func(ctx context.Context, params any) (any, error) {
		var request MountRequest
		if err := rpc.Argument(params, &request); err != nil {
			return nil, err
		}
		err := actions.CreateMount(ctx, request)
		logResult(logger, MethodMountCreate, request.Path, err)
		return nil, encodeError(err)
	})
	withPath(MethodMountRemove, actions.RemoveMount)
	withPath(MethodMountUnmount, actions.Unmount)

	noArgs(MethodRedirectorStatus, func(ctx context.Context) (any, error) {
		status, err := actions.RedirectorStatus(ctx)
		if err != nil {
			return nil, err
		}
		return rpc.Params(status)
	})
	noArgs(MethodRedirectorStart, unit(actions.StartRedirector))
	noArgs(MethodRedirectorStop, unit(actions.StopRedirector))

	server.Handle(MethodLink, func(ctx context.Context, params any) (any, error) {
		var request LinkRequest
		if err := rpc.Argument(params, &request); err != nil {
			return nil, err
		}
		err := actions.Link(ctx, request)
		logResult(logger, MethodLink, request.Link, err)
		return nil, encodeError(err)
	})
	withPath(MethodUnlink, actions.Unlink)
}

func logResult(logger *slog.Logger, method, path string, err error) {
	attributes := []any{"method", method}
	if path != "" {
		attributes = append(attributes, "path", path)
	}
	if err != nil {
		logger.Warn("helper action failed", append(attributes, "error", err)...)
		return
	}
	switch method {
	case MethodVersion, MethodFuseStatus, MethodRedirectorStatus:
		logger.Debug("helper query", attributes...)
	default:
		logger.Info("helper action", attributes...)
	}
}
