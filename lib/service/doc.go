// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared infrastructure for Maestro services.
//
// A Maestro service is a standalone Go binary with a CBOR Unix socket
// API and, optionally, an HTTP surface for browser clients. This
// package extracts the common scaffolding that every service needs:
//
//   - Socket server: CBOR Unix socket server with action dispatch,
//     streaming actions, connection timeouts, and graceful shutdown.
//   - Socket client: one-connection-per-request CBOR calls and
//     long-lived streaming subscriptions.
//   - HTTP server: TCP listener lifecycle with graceful shutdown for
//     REST and event-stream endpoints.
//
// Services compose these utilities in their own main() function rather
// than subclassing a framework. The package provides building blocks,
// not a runtime.
//
// # Authentication
//
// Socket-level caller authentication is not implemented. Access
// control is the socket file's Unix permissions: any process that can
// open the socket can invoke any action. Deployments that need
// isolation place the socket in a directory only the intended callers
// can reach.
package service
