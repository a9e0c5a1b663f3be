// Package engine implements the volume ducking state machine.
//
// One poll task owns the [model.DuckState]. Each cycle it enumerates the
// audio sessions, reads the peak of every Priority session, and either
// ducks, restores, or leaves the Music sessions alone. Volume changes are
// delegated to a [Fader] and never block the poll loop.
//
// Settings and the classification table are swapped atomically from other
// goroutines; a cycle always sees one consistent copy of each.
package engine
