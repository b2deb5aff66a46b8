package capture

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is the BLAKE3 digest of an uncompressed body.
type Hash [32]byte

// bodyDomainKey separates capture hashes from any other BLAKE3 use of
// the same bytes. Changing it orphans every stored blob.
var bodyDomainKey = [32]byte{
	'd', 'm', 'a', '-', 'g', 'o', 'a', 'm', 'f', '.', 'c', 'a', 'p', 't', 'u', 'r',
	'e', '.', 'b', 'o', 'd', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashBody computes the keyed hash that names a stored body.
func HashBody(data []byte) Hash {
	hasher, err := blake3.NewKeyed(bodyDomainKey[:])
	if err != nil {
		panic("capture: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the hex form used in file names and the index.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex hash.
func ParseHash(s string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return hash, fmt.Errorf("parsing capture hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("capture hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}
