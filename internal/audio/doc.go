// Package audio defines the session directory contract the ducking engine
// consumes and provides two implementations of it: an in-memory directory and
// a local playback directory that mixes sound files through the beep speaker
// with per-session gain and peak meters.
package audio
