// Package storage provides the key/value persistence collaborator.
//
// It is used for opaque token persistence only; the scheduling core never
// touches it. Two drivers are available: "sqlite" (single-writer database
// file) and "file" (JSON snapshot plus append journal). Values can pass
// through a reversible XOR obfuscation layer; see obfuscate.go for its
// explicit non-guarantee.
package storage
