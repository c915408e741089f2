// Package storage provides GORM-backed storage for the fanin packages.
//
// GormStorage implements both sides of the system:
//   - core.TaskStorage: the queue backend that batch inserts go to and that
//     workers dequeue from, with tombstones for task ids that already ran
//   - core.ContextStore: the persistence engine for callback context
//     records, with optimistic versioning and retry on conflicting updates
//
// Any GORM dialect works; tests use SQLite and PostgreSQL. See
// pkg/storage/etcdstore for an etcd based ContextStore.
//
// Most users should import the root package github.com/jdziat/fanin
// which provides NewGormStorage() to create storage instances.
package storage
