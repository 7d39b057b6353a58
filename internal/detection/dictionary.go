package detection

import (
	"math/bits"
	"sync"
)

const (
	// dataBits is the side of the inner data grid of a marker.
	dataBits = 4

	// gridModules is the side of a marker in modules: data grid plus a
	// one-module black border on each side.
	gridModules = dataBits + 2

	// dictionarySize is the number of marker IDs available.
	dictionarySize = 32

	// minCodeDistance is the minimum Hamming distance between any code and
	// any rotation of any other code, and between a code and its own
	// non-identity rotations. Three allows one bit of correction.
	minCodeDistance = 3
)

var (
	dictOnce sync.Once
	dictRots [][4]uint16
)

// DictionarySize returns the number of decodable marker IDs.
func DictionarySize() int {
	return len(dictionary())
}

// Code returns the 16-bit data pattern of marker id in canonical orientation.
// Bit 15 is the top-left data module, bit 0 the bottom-right; a set bit is
// printed black.
func Code(id int) (uint16, bool) {
	d := dictionary()
	if id < 0 || id >= len(d) {
		return 0, false
	}
	return d[id][0], true
}

// Identify matches observed data bits against the dictionary.
//
// It returns the marker id and the number of clockwise quarter turns k such
// that observed == rotate^k(Code(id)), allowing up to maxErrors differing
// bits. ok is false when no code is close enough.
func Identify(observed uint16, maxErrors int) (id, turns int, ok bool) {
	best := maxErrors + 1
	for i, rots := range dictionary() {
		for k, r := range rots {
			if d := bits.OnesCount16(observed ^ r); d < best {
				best, id, turns, ok = d, i, k, true
			}
		}
	}
	return id, turns, ok
}

// rotateCW turns a data grid a quarter turn clockwise:
// new[r][c] = old[n-1-c][r].
func rotateCW(code uint16) uint16 {
	var out uint16
	for r := 0; r < dataBits; r++ {
		for c := 0; c < dataBits; c++ {
			if bitAt(code, dataBits-1-c, r) {
				out |= bitMask(r, c)
			}
		}
	}
	return out
}

func rotations(code uint16) [4]uint16 {
	var rots [4]uint16
	rots[0] = code
	for k := 1; k < 4; k++ {
		rots[k] = rotateCW(rots[k-1])
	}
	return rots
}

func bitMask(r, c int) uint16 {
	return 1 << uint(dataBits*dataBits-1-(r*dataBits+c))
}

func bitAt(code uint16, r, c int) bool {
	return code&bitMask(r, c) != 0
}

// dictionary builds the code table greedily in ascending order so every
// build yields the same IDs.
func dictionary() [][4]uint16 {
	dictOnce.Do(func() {
		for v := 0; v < 1<<16 && len(dictRots) < dictionarySize; v++ {
			code := uint16(v)
			if n := bits.OnesCount16(code); n < 5 || n > 11 {
				continue
			}
			rots := rotations(code)
			if !acceptable(code, rots) {
				continue
			}
			dictRots = append(dictRots, rots)
		}
	})
	return dictRots
}

func acceptable(code uint16, rots [4]uint16) bool {
	for k := 1; k < 4; k++ {
		if bits.OnesCount16(code^rots[k]) < minCodeDistance {
			return false
		}
	}
	for _, prev := range dictRots {
		for _, r := range prev {
			if bits.OnesCount16(code^r) < minCodeDistance {
				return false
			}
		}
	}
	return true
}
