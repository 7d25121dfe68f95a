// Package audio turns synthesized speech payloads into a seekable, pausable
// playback timeline. Playback runs through an Output (oto/v3 in production)
// and time is read from a HardwareClock, so the Clock can be driven by a
// virtual clock in tests.
package audio
