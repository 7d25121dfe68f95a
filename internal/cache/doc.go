// Package cache stores synthesized audio by session id so replaying a
// history entry never calls the synthesizer again. It has an in-memory LRU
// level (L1) in front of a compressed on-disk level (L2).
package cache
