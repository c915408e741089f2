// Package security provides validation, sanitization, and limits for the fanin packages.
//
// This package includes:
//   - Input validation for target names and queue names
//   - Error message sanitization before failures are stored
//   - Clamping functions to enforce safe limits on retries, concurrency and batch sizes
//
// Most users should import the root package github.com/jdziat/fanin
// which re-exports these functions.
package security
