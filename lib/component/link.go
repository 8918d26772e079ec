// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package component

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/helper"
)

// CommandLineLink is the symlink that puts the command-line tool on
// PATH. It is created directly when the link directory is writable and
// through the helper otherwise.
type CommandLineLink struct {
	env  *config.Environment
	deps Dependencies
}

func NewCommandLineLink(env *config.Environment, deps Dependencies) *CommandLineLink {
	return &CommandLineLink{env: env, deps: deps.withDefaults()}
}

func (c *CommandLineLink) Descriptor() Descriptor {
	return Descriptor{Name: CommandLineLinkKind.String(), Info: "command-line tool link", Kind: CommandLineLinkKind}
}

// View omits the runtime state: a symlink has none.
func (c *CommandLineLink) View(status Status) []Field {
	var fields []Field
	for _, field := range DefaultView(status) {
		if field.Name != "runtime" {
			fields = append(fields, field)
		}
	}
	return fields
}

func (c *CommandLineLink) target() string {
	return c.env.BinaryPath(config.CLIBinary)
}

func (c *CommandLineLink) Status(context.Context) (Status, error) {
	link := c.env.CommandLinkPath
	fields := []Field{{Name: "link", Value: link}, {Name: "target", Value: c.target()}}

	info, err := os.Lstat(link)
	if errors.Is(err, os.ErrNotExist) {
		return NewStatus(NotInstalled, RuntimeUnknown, fields...), nil
	}
	if err != nil {
		return Status{}, err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return ErrorStatus(fmt.Errorf("%s: %w", link, helper.ErrNotSymlink), fields...), nil
	}
	current, err := os.Readlink(link)
	if err != nil {
		return Status{}, err
	}
	if current != c.target() {
		err := fmt.Errorf("%s links to %s: %w", link, current, helper.ErrLinkConflict)
		return ErrorStatus(err, fields...).WithAction(ReinstallAction), nil
	}
	return NewStatus(Installed, RuntimeUnknown, fields...), nil
}

// Install creates the link. A link pointing elsewhere is replaced only
// when forced; a regular file is never replaced.
func (c *CommandLineLink) Install(ctx context.Context) error {
	request := helper.LinkRequest{Target: c.target(), Link: c.env.CommandLinkPath, Force: Forced(ctx)}
	err := helper.CreateLink(request)
	if errors.Is(err, os.ErrPermission) {
		c.deps.Logger.Debug("link directory not writable, asking helper", "link", request.Link)
		return c.deps.Helper.Link(ctx, request)
	}
	return err
}

// Uninstall removes the link if it points at this bundle. A missing
// link, or one that belongs to another installation, is left alone.
func (c *CommandLineLink) Uninstall(ctx context.Context) error {
	link := c.env.CommandLinkPath
	info, err := os.Lstat(link)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("%s: %w", link, helper.ErrNotSymlink)
	}
	current, err := os.Readlink(link)
	if err != nil {
		return err
	}
	if current != c.target() {
		c.deps.Logger.Info("leaving foreign command-line link", "link", link, "target", current)
		return nil
	}
	err = helper.RemoveLink(link)
	if errors.Is(err, os.ErrPermission) {
		return c.deps.Helper.Unlink(ctx, link)
	}
	return err
}

func (c *CommandLineLink) Start(context.Context) error { return nil }
func (c *CommandLineLink) Stop(context.Context) error  { return nil }
