// Package checksum fingerprints Markdown sources so unchanged files can skip
// re-analysis.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

var (
	crlf = []byte("\r\n")
	cr   = []byte("\r")
	lf   = []byte("\n")
)

// Source returns the hex-encoded SHA-256 digest of data after line endings
// are normalized to "\n". Two files that only differ in line endings analyze
// to the same tokens and share a digest.
func Source(data []byte) string {
	if bytes.IndexByte(data, '\r') >= 0 {
		data = bytes.ReplaceAll(data, crlf, lf)
		data = bytes.ReplaceAll(data, cr, lf)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
