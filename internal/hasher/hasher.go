// Package hasher implements the Jenkins one-at-a-time hash used to key records.
//
// The digest is a fast pre-filter and sort key only. Two distinct names may
// collide; callers must compare names exactly to decide equality.
package hasher

// Sum returns the one-at-a-time digest of name's raw bytes.
func Sum(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = mix(h, name[i])
	}
	return finalize(h)
}

func mix(h uint32, b byte) uint32 {
	h += uint32(b)
	h += h << 10
	h ^= h >> 6
	return h
}

func finalize(h uint32) uint32 {
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}
