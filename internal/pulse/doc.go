// Package pulse is an audio.Directory over the PulseAudio D-Bus protocol
// (module-dbus-protocol). Each playback stream maps to the identity of the
// application that owns it; streams sharing an identity form one session.
//
// The protocol exposes no per-stream level meters, so the peak reported for
// a session is 1 while it has an unmuted stream and 0 otherwise.
package pulse
