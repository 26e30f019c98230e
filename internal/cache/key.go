package cache

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes parts into a stable key. Parts are encoded as JSON, which
// sorts map keys, so variable maps hash the same regardless of build order.
func Fingerprint(parts ...any) string {
	data, err := json.Marshal(parts)
	if err != nil {
		data = []byte(fmt.Sprint(parts...))
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
