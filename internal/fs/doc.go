// Package fs abstracts the file operations of the WAL so tests can inject
// I/O failures. Production code uses [Default] ([LocalFS]); tests wrap it in
// a [FaultyFS] with per-path fault rules.
//
// The interfaces deliberately take no context.Context: local file syscalls
// are fast and not meaningfully cancelable.
package fs
