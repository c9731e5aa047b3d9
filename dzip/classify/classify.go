// Package classify decides which archive members are DICOM streams by probing
// the Part 10 signature, without parsing anything.
package classify

import (
	"bytes"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ZanzyTHEbar/dicomzip/dzip/archive"
)

// PrefixLength is the number of bytes needed to see the signature
const PrefixLength = 132

var signature = []byte("DICM")

// Reason explains a negative classification
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonDirectory   Reason = "directory"
	ReasonIgnored     Reason = "ignored"
	ReasonTooShort    Reason = "too short"
	ReasonNoSignature Reason = "no signature"
	ReasonReadError   Reason = "read error"
)

// Candidate is the classification of one member. A positive candidate always
// comes from a successful read of PrefixLength bytes.
type Candidate struct {
	archive.Member
	IsDICOM bool
	Reason  Reason
	Err     error // set only with ReasonReadError
}

// PrefixReader is the part of archive.Reader the classifier needs
type PrefixReader interface {
	ReadPrefix(i, n int) ([]byte, error)
}

// IgnoreChecker matches member paths against ignore patterns
type IgnoreChecker interface {
	MatchesPath(path string) bool
}

// Classifier probes members of one archive. Safe for concurrent use.
type Classifier struct {
	src    PrefixReader
	ignore IgnoreChecker
}

// New returns a classifier over src. patterns use gitignore syntax; members
// matching any of them are never read.
func New(src PrefixReader, patterns []string) *Classifier {
	c := &Classifier{src: src}
	if len(patterns) > 0 {
		c.ignore = ignore.CompileIgnoreLines(patterns...)
	}
	return c
}

// HasSignature reports whether prefix carries "DICM" at offset 128
func HasSignature(prefix []byte) bool {
	if len(prefix) < PrefixLength {
		return false
	}
	return bytes.Equal(prefix[PrefixLength-len(signature):PrefixLength], signature)
}

// Classify produces exactly one candidate for m and never fails
func (c *Classifier) Classify(m archive.Member) Candidate {
	cand := Candidate{Member: m}

	if m.IsDir() {
		cand.Reason = ReasonDirectory
		return cand
	}
	if c.ignore != nil && c.ignore.MatchesPath(m.Name) {
		cand.Reason = ReasonIgnored
		return cand
	}

	prefix, err := c.src.ReadPrefix(m.Index, PrefixLength)
	if err != nil {
		cand.Reason = ReasonReadError
		cand.Err = err
		return cand
	}
	if len(prefix) < PrefixLength {
		cand.Reason = ReasonTooShort
		return cand
	}
	if !HasSignature(prefix) {
		cand.Reason = ReasonNoSignature
		return cand
	}

	cand.IsDICOM = true
	return cand
}
