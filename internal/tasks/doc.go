// Package tasks fans a fetch out over (course, subtype) units and reports results as events.
//
// # Scopes
//
// A single-course scope runs its units one after another through the shared queue,
// pausing between them, and emits a progress event followed by a chunk for every unit
// even when the unit returned nothing.
//
// An all-courses scope submits course × subtype units to the shared queue in batches.
// Each finished unit produces a progress event; units with results also produce a chunk.
// Batches are separated by a short fixed pause.
//
// # Failures
//
// A failing unit is logged and counted as empty. Only failures that make the whole
// operation meaningless (no session, no semester, unknown course) produce an error
// event, and such a stream never completes.
//
// # Pacing
//
// Delays between upstream requests are a [Pacer]. [RandomPacer] and [FixedPacer] cover
// the single-course and batch cases; [NoPacer] is for tests.
package tasks
