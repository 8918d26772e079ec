// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error handler shared by the
// warden binaries. [Fatal] is the one place that writes raw text to
// stderr before exiting; everything after startup logs through slog.
package process
