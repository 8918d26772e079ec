// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"

	"github.com/bureau-foundation/warden/lib/rpc"
)

// Client calls the helper daemon. It connects on first use and
// reconnects after the daemon restarts.
type Client struct {
	transport *rpc.Transport
}

var _ Actions = (*Client)(nil)

// NewClient returns a client dialing the helper with dialer. Options
// are passed to the underlying transport with AutoConnect forced on.
func NewClient(dialer rpc.Dialer, options rpc.TransportOptions) *Client {
	options.AutoConnect = true
	return &Client{transport: rpc.NewTransport(dialer, options)}
}

// Close drops the connection. Calls in flight fail.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	return decodeError(rpc.CallInto(ctx, c.transport, method, params, result))
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var result versionResult
	if err := c.call(ctx, MethodVersion, nil, &result); err != nil {
		return "", err
	}
	return result.Version, nil
}

func (c *Client) FuseStatus(ctx context.Context) (FuseStatus, error) {
	var status FuseStatus
	err := c.call(ctx, MethodFuseStatus, nil, &status)
	return status, err
}

func (c *Client) InstallFuse(ctx context.Context) error {
	return c.call(ctx, MethodFuseInstall, nil, nil)
}

func (c *Client) UninstallFuse(ctx context.Context) error {
	return c.call(ctx, MethodFuseUninstall, nil, nil)
}

func (c *Client) LoadFuse(ctx context.Context) error {
	return c.call(ctx, MethodFuseLoad, nil, nil)
}

func (c *Client) UnloadFuse(ctx context.Context) error {
	return c.call(ctx, MethodFuseUnload, nil, nil)
}

func (c *Client) CreateMount(ctx context.Context, request MountRequest) error {
	return c.call(ctx, MethodMountCreate, request, nil)
}

func (c *Client) RemoveMount(ctx context.Context, path string) error {
	return c.call(ctx, MethodMountRemove, pathRequest{Path: path}, nil)
}

func (c *Client) Unmount(ctx context.Context, path string) error {
	return c.call(ctx, MethodMountUnmount, pathRequest{Path: path}, nil)
}

func (c *Client) RedirectorStatus(ctx context.Context) (RedirectorStatus, error) {
	var status RedirectorStatus
	err := c.call(ctx, MethodRedirectorStatus, nil, &status)
	return status, err
}

func (c *Client) StartRedirector(ctx context.Context) error {
	return c.call(ctx, MethodRedirectorStart, nil, nil)
}

func (c *Client) StopRedirector(ctx context.Context) error {
	return c.call(ctx, MethodRedirectorStop, nil, nil)
}

func (c *Client) Link(ctx context.Context, request LinkRequest) error {
	return c.call(ctx, MethodLink, request, nil)
}

func (c *Client) Unlink(ctx context.Context, path string) error {
	return c.call(ctx, MethodUnlink, pathRequest{Path: path}, nil)
}
