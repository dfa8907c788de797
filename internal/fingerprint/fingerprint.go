// Package fingerprint converts raw error text into a canonical, comparable
// form and derives a structural hash from it.
//
// Normalization strips everything volatile from an error message — paths,
// timestamps, addresses, line numbers, literals — so that two occurrences of
// the same underlying bug on different machines produce byte-identical text.
// The structural hash of that text is the exact-match key for the knowledge
// base.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Replacement tokens contain no digits, quotes, or path characters, so a
// second normalization pass leaves them untouched. That property is what
// makes Normalize idempotent.
const (
	tokenTimestamp = "<TIMESTAMP>"
	tokenUUID      = "<UUID>"
	tokenAddr      = "<ADDR>"
	tokenPath      = "<PATH>"
	tokenLoc       = "<LOC>"
	tokenVar       = "<VAR>"
	tokenNum       = "<NUM>"
	tokenFrame     = "at <FRAME>"
)

var (
	ansiEscapeRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	timestampRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)
	uuidRe       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	memAddrRe    = regexp.MustCompile(`0x[0-9a-fA-F]{4,16}`)
	pathRe       = regexp.MustCompile(`(/[a-zA-Z0-9_./-]+|[A-Za-z]:\\[a-zA-Z0-9_.\\ -]+|~/[a-zA-Z0-9_./-]+)`)
	lineColRe    = regexp.MustCompile(`(?i)(line |ln |:)\d+(:\d+)?`)
	tracebackRe  = regexp.MustCompile(`(?m)File "[^"]+", line \d+`)
	stackFrameRe = regexp.MustCompile(`(?m)^\s+at .+$`)
	quotedVarRe  = regexp.MustCompile(`'[a-zA-Z_]\w*'`)
	numLiteralRe = regexp.MustCompile(`\b\d{3,}\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize strips environment-specific noise from an error message.
//
// It is deterministic, total (any input yields some output, empty included)
// and idempotent: Normalize(Normalize(x)) == Normalize(x).
//
// Substitution order matters. Timestamps, UUIDs, addresses, and paths must be
// replaced before the generic numeric-literal pass, otherwise digits inside
// those tokens would be rewritten twice and the result would depend on the
// order substrings happen to match.
func Normalize(raw string) string {
	text := strings.TrimSpace(raw)
	text = ansiEscapeRe.ReplaceAllString(text, "")
	text = timestampRe.ReplaceAllString(text, tokenTimestamp)
	text = uuidRe.ReplaceAllString(text, tokenUUID)
	text = memAddrRe.ReplaceAllString(text, tokenAddr)
	text = pathRe.ReplaceAllString(text, tokenPath)
	text = lineColRe.ReplaceAllString(text, tokenLoc)
	text = tracebackRe.ReplaceAllString(text, `File "`+tokenPath+`", `+tokenLoc)
	text = stackFrameRe.ReplaceAllString(text, "  "+tokenFrame)
	text = quotedVarRe.ReplaceAllString(text, tokenVar)
	text = numLiteralRe.ReplaceAllString(text, tokenNum)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Hash returns the hex-encoded SHA-256 digest of normalized error text.
// It is used purely as an equality key and never reversed.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Fingerprint normalizes raw error text and hashes the result.
func Fingerprint(raw string) (normalized, hash string) {
	normalized = Normalize(raw)
	return normalized, Hash(normalized)
}
