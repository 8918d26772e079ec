// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/msgpack"
	"github.com/bureau-foundation/warden/lib/rpc"
)

func callCommand() *cli.Command {
	var flags globalFlags
	var timeout time.Duration
	return &cli.Command{
		Name:    "call",
		Summary: "Call a method on the core service",
		Usage:   "warden call METHOD [PARAMS] [flags]",
		Description: `Send one request to the core service over its socket and print the
result as JSON. PARAMS is JSON (comments and trailing commas allowed).
An array is sent as the positional argument list; any other value is
sent as the single argument.`,
		Examples: []cli.Example{
			{Description: "Check the service is healthy", Command: "warden call status.check"},
			{Command: `warden call config.get '{"key": "mount_dir"}'`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.DurationVar(&timeout, "timeout", rpc.DefaultCallTimeout, "per-call timeout")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("usage: warden call METHOD [PARAMS]")
			}
			var params any = []any{}
			if len(args) == 2 {
				parsed, err := parseParams(args[1])
				if err != nil {
					return err
				}
				params = parsed
			}

			env, err := flags.environment()
			if err != nil {
				return err
			}
			logger := cli.NewCommandLogger(flags.verbose)
			transport := rpc.NewTransport(rpc.UnixDialer(env.SocketPath), rpc.TransportOptions{
				Logger:      logger,
				CallTimeout: timeout,
			})
			defer transport.Close()

			ctx, cancel := signalContext()
			defer cancel()
			if err := transport.Connect(ctx); err != nil {
				return err
			}
			result, err := transport.Call(ctx, args[0], params)
			if err != nil {
				return err
			}
			return cli.WriteJSON(toJSON(result))
		},
	}
}

// parseParams turns command-line JSON into the RPC value model and
// wraps a non-array value as the single positional argument.
func parseParams(text string) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON([]byte(text))))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing params: %w", err)
	}
	value := fromJSON(raw)
	if array, ok := value.([]any); ok {
		return array, nil
	}
	return []any{value}, nil
}

// fromJSON converts decoded JSON into values the codec encodes:
// integers stay integers, objects become maps.
func fromJSON(value any) any {
	switch v := value.(type) {
	case json.Number:
		if integer, err := v.Int64(); err == nil {
			return integer
		}
		float, _ := v.Float64()
		return float
	case []any:
		for i := range v {
			v[i] = fromJSON(v[i])
		}
		return v
	case map[string]any:
		for key, item := range v {
			v[key] = fromJSON(item)
		}
		return v
	default:
		return v
	}
}

// toJSON converts a decoded RPC value into something encoding/json
// renders faithfully. Map keys are stringified.
func toJSON(value any) any {
	switch v := value.(type) {
	case *msgpack.Map:
		result := make(map[string]any, v.Len())
		for _, entry := range v.Entries() {
			key, ok := entry.Key.(string)
			if !ok {
				key = fmt.Sprint(entry.Key)
			}
			result[key] = toJSON(entry.Value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = toJSON(item)
		}
		return result
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Sprint(v)
		}
		return v
	default:
		return v
	}
}
