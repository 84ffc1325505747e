package utils

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewID returns a ULID stamped with at. IDs generated within the same
// millisecond stay lexicographically increasing.
func NewID(at time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(at.UTC()), mono)
	if err != nil {
		// Monotonic entropy overflows only after 2^80 ids in one millisecond
		// or when time goes backwards; fall back to a fresh reader.
		id = ulid.MustNew(ulid.Timestamp(at.UTC()), cryptoRand.Reader)
	}
	return id.String()
}
