package hub

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// inlineKeyLimit is the payload size below which the dedup key embeds the
// payload verbatim (§4.1 "small primitive payloads inline"). Above it, the
// key is derived from an FNV-1a hash mixed with length so two differently
// sized payloads never collide on hash alone.
const inlineKeyLimit = 96

// dedupKey derives the dedup cache key for a request from its method,
// session scope, and encoded payload (§4.1 "Dedup cache"). Small payloads
// are embedded inline so distinct trivial requests never collide; large
// payloads are reduced to a 53-bit FNV-1a hash plus the payload length.
func dedupKey(method, session string, payload []byte) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\x00')
	b.WriteString(session)
	b.WriteByte('\x00')

	if len(payload) <= inlineKeyLimit {
		b.Write(payload)
		return b.String()
	}

	h := fnv.New64a()
	_, _ = h.Write(payload)
	// Mask to 53 bits (the largest integer a float64/JS-number host can
	// represent exactly) per §4.1's "FNV-1a-derived 53-bit hash"; mix in
	// the length so truncation collisions across sizes remain unlikely.
	sum := h.Sum64() & ((1 << 53) - 1)
	b.WriteString(strconv.FormatUint(sum, 36))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(len(payload)))
	return b.String()
}
