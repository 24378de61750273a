// Package linker resolves a module's imports against host-supplied
// providers.
//
// A Provider answers lookups by (module, field) name pair. Resolve walks
// the module's imports in declaration order, asks each provider in the
// order given, and type-checks every match against the declared
// expectation before instantiation sees it: function signatures must be
// structurally equal, memory and table limits must fall within the
// declared range, and global types must match exactly. The first import
// with no provider, or with a mismatched provider, fails the whole
// resolution.
//
// Namespace is the standard Provider: a mutable name table host code
// fills with functions, memories, tables, and globals before
// instantiating.
package linker
