// Package bitset holds the word-level bit primitives used for slot allocation.
// A word is a uint64; bit 0 is the least significant bit.
package bitset

import "math/bits"

const (
	WordBits = 64
	WordLog  = 6
	WordMask = WordBits - 1
	full     = ^uint64(0)
)

// FirstClear 返回最低位的0位下标, word全满时返回-1
func FirstClear(word uint64) int {
	if word == full {
		return -1
	}
	return bits.TrailingZeros64(^word)
}

// FirstSet 返回最低位的1位下标, word为0时返回-1
func FirstSet(word uint64) int {
	if word == 0 {
		return -1
	}
	return bits.TrailingZeros64(word)
}

func Set(word uint64, bit int) uint64 {
	return word | 1<<uint(bit)
}

func Clear(word uint64, bit int) uint64 {
	return word &^ (1 << uint(bit))
}

func IsSet(word uint64, bit int) bool {
	return word&(1<<uint(bit)) != 0
}

func Full(word uint64) bool {
	return word == full
}

func Count(word uint64) int {
	return bits.OnesCount64(word)
}

// Words 返回容纳n个位需要的word数
func Words(n int) int {
	return (n + WordMask) >> WordLog
}

// Alloc 在words中找第一个空位并置1, 返回全局位下标; 全满返回-1
func Alloc(words []uint64) int {
	for i, w := range words {
		if w == full {
			continue
		}
		bit := bits.TrailingZeros64(^w)
		words[i] = w | 1<<uint(bit)
		return i<<WordLog | bit
	}
	return -1
}

// Release 清除全局位下标pos, 返回该位之前是否为1
func Release(words []uint64, pos int) bool {
	if pos < 0 {
		return false
	}
	i := pos >> WordLog
	if i >= len(words) {
		return false
	}
	mask := uint64(1) << uint(pos&WordMask)
	if words[i]&mask == 0 {
		return false
	}
	words[i] &^= mask
	return true
}
