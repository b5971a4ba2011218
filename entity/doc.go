// Package entity builds immutable descriptors of registered bun models
// (columns, keys, relationships, unique constraints) once at startup, so
// that filter compilation, ordering and schema generation never reflect
// over models on the hot path.
package entity
