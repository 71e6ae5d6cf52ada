// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Maestro's standard CBOR encoding configuration.
//
// Maestro uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the HTTP API, server-sent event
//     streams, CLI output, and policy files.
//   - CBOR for internal protocols: service socket communication,
//     stream frames, and compressed blobs in the campaign store.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Maestro package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations (blobs, state files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON or interact with CLI tooling.
//     Examples: stored blob envelopes, internal protocol framing.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: service socket
//     protocol types (which the CLI consumes), campaign schema types
//     that appear in CLI --json output and SSE payloads.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract: doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
