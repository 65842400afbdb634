package job

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes job_sha: a deterministic hash of (verb, canonical
// definition). Two submissions with byte-identical canonical forms produce
// the same job_sha (spec.md §8, property 3).
//
// No third-party canonicalization or hashing library appears anywhere in
// the retrieved example pack; crypto/sha256 plus a manual sorted-key
// encoding is the idiomatic Go stand-in for the Python source's
// hashlib.sha3_224 over a sorted-json encoding (models.py: JOB_SHA3_224).
func Fingerprint(verb string, def Definition) string {
	h := sha256.New()
	h.Write([]byte(verb))
	h.Write([]byte{0})
	h.Write(canonical(def))
	return hex.EncodeToString(h.Sum(nil))
}
