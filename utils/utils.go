package utils

import (
	"math/rand"
	"strings"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// ContainsString returns true iff the provided string slice hay contains string
// needle.
func ContainsString(hay []string, needle string) bool {
	for _, str := range hay {
		if str == needle {
			return true
		}
	}
	return false
}

// RandomAlphabetString returns a random lower case string of the given length.
func RandomAlphabetString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// UniqInt64s deduplicates ids preserving first-seen order.
func UniqInt64s(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}

// ChunkInt64s splits ids into consecutive chunks of at most size elements.
// The last chunk may be shorter. A non-positive size yields a single chunk.
func ChunkInt64s(ids []int64, size int) [][]int64 {
	if size <= 0 {
		if len(ids) == 0 {
			return nil
		}
		return [][]int64{ids}
	}
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// ChunkStrings splits values into consecutive chunks of at most size elements.
func ChunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		if len(values) == 0 {
			return nil
		}
		return [][]string{values}
	}
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// StripNulBytes removes NUL bytes from a raw API payload. The remote
// sometimes includes them and Postgres rejects NUL inside text/jsonb values.
func StripNulBytes(payload []byte) []byte {
	s := string(payload)
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, `\u0000`, "")
	return []byte(s)
}
