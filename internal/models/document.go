package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrNotFound is returned (wrapped) by repositories when an update targets an
// identifier that does not exist.
var ErrNotFound = errors.New("not found")

// Report is the transient, in-flight copy of a security report pulled from a
// work-item repository. BinFile is the uploaded document (nil means nothing to
// convert) and MdFile the text derived from it.
type Report struct {
	ID        string
	Name      string
	BinFile   []byte
	MdFile    string
	Embedding Embedding
}

// Vulnerability is a finding extracted from a report. Description is always set
// when the record is created upstream.
type Vulnerability struct {
	ID          string
	Title       string
	Description string
	Embedding   Embedding
}

// ContentHash is the staleness key every store records next to a derived field:
// a derived value is current iff the hash of its source matches the stored hash.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
