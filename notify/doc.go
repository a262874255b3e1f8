// Package notify delivers user-facing notifications about generation runs:
// completion, files added, no-output runs, cancellations and failures.
//
// LogNotifier writes them to slog. NATSNotifier publishes them as JSON on
// <subject>.<kind> so other processes (a gallery indexer, a desktop shell)
// can react to new files. Multi combines notifiers.
package notify
