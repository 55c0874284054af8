// Package ui implements the watch view, a bubbletea program that follows one
// homework or documents scope.
//
// The view starts a stream on launch: cached data shows immediately and live
// chunks merge into the same list as they arrive. Pressing r starts a refresh,
// which supersedes whatever is still running for the scope.
//
// Engine events are applied to a [syncer.WorkingSet] from the engine's goroutine.
// The sink never blocks: it only nudges a one-slot channel, and the program
// re-reads the working set when the nudge is received.
package ui
