// Package core provides the fundamental types and interfaces for the fanin packages.
//
// This package contains:
//   - Task, Tombstone and ContextRecord data models with GORM annotations
//   - QueueBackend, TaskStorage and ContextStore interfaces
//   - Event types for monitoring contexts and workers
//   - Error types for insertion faults and job processing
//
// Most users should import the root package github.com/jdziat/fanin
// instead of this package directly.
package core
