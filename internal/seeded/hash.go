// Package seeded derives puzzle parameters from a seed string so that every
// client of a room computes identical state without a network round-trip.
// The hash and generator are bit-exact with the browser implementation.
package seeded

import "unicode/utf16"

const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

// Hash is 32-bit FNV-1a over the UTF-16 code units of s.
func Hash(s string) uint32 {
	h := fnvOffset32
	for _, cu := range utf16.Encode([]rune(s)) {
		h ^= uint32(cu)
		h *= fnvPrime32
	}
	return h
}
