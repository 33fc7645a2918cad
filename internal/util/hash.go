package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// SHA256HexFromReader hashes a stream without buffering it. Uploaded
// documents get their ID this way, so re-uploading the same file maps
// onto the same document row.
func SHA256HexFromReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChunkFingerprint derives a stable chunk ID from the document, index
// layer, position, and text. Re-indexing an unchanged document produces
// identical IDs, which keeps stored citations resolvable.
func ChunkFingerprint(documentID, layer string, position int, text string) string {
	inner := sha256.Sum256([]byte(text))
	outer := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d:%s", documentID, layer, position, hex.EncodeToString(inner[:]))))
	return hex.EncodeToString(outer[:])
}
