// Package domain provides the value types exchanged between the producer,
// the workers and the monitor, together with their wire codecs.
//
// This package contains type definitions only. Every other internal package
// imports domain; domain imports nothing internal.
//
// Key design constraints:
//   - Values are immutable once constructed; constructors copy maps and slices
//   - All JSON tags use snake_case
//   - Decoding fails closed: unknown fields, missing required fields and
//     trailing data are rejected (see codec.go)
//   - Empty collections decode as nil
//   - Variable names are NFC-normalized so bindings match formula identifiers
package domain
