// util has the debug printing and integer helpers shared by every
// layer.
package util

import "log"

// Debug gates DPrintf: messages at or below this level print. Layers
// log at level 5, lifecycle events (mkfs, mount) at level 1.
const Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// RoundUp divides n by sz, rounding up.
func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	return min(n, m)
}
