package encryption

import (
	"bytes"

	"filippo.io/age/armor"
)

// Format identifies how a snapshot file is encoded.
type Format int

const (
	FormatPlain Format = iota
	FormatAge
	FormatTest
)

// ageMagic starts every binary age file.
var ageMagic = []byte("age-encryption.org/")

// SniffLen is the number of leading bytes Detect needs.
const SniffLen = 64

// Detect inspects the first bytes of a snapshot file.
func Detect(head []byte) Format {
	head = bytes.TrimLeft(head, " \t\r\n")
	switch {
	case bytes.HasPrefix(head, ageMagic), bytes.HasPrefix(head, []byte(armor.Header)):
		return FormatAge
	case bytes.HasPrefix(head, testHeader):
		return FormatTest
	default:
		return FormatPlain
	}
}

// Encrypted reports whether f needs a DecryptionContext to be read.
func (f Format) Encrypted() bool { return f != FormatPlain }
