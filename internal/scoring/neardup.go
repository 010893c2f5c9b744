package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// defaultDedupWindow bounds how many accepted texts a Deduper compares
// against. Sequence similarity is O(n·m) per pair; an unbounded window would
// make large retrieval batches quadratic in practice.
const defaultDedupWindow = 64

// NormalizeText lowercases text and collapses runs of whitespace to single
// spaces. Dedup identity and similarity both operate on this form so that
// formatting differences between sources don't defeat matching.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DedupKey derives a stable evidence identity from normalized content.
// Source-independent: two candidates with the same key are the same piece of
// evidence no matter which backend or agent found them.
func DedupKey(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:16])
}

// SimilarityRatio computes the Ratcliff–Obershelp similarity of two texts in
// [0,1] after normalization: 2·M / (len(a)+len(b)) where M is the total
// length of recursively matched common blocks.
func SimilarityRatio(a, b string) float64 {
	ra := []rune(NormalizeText(a))
	rb := []rune(NormalizeText(b))
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	matched := matchedLength(ra, rb)
	return 2.0 * float64(matched) / float64(len(ra)+len(rb))
}

// matchedLength returns the total length of common blocks found by
// recursively locating the longest common contiguous substring and matching
// the regions to its left and right.
func matchedLength(a, b []rune) int {
	ai, bi, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchedLength(a[:ai], b[:bi])
	total += matchedLength(a[ai+size:], b[bi+size:])
	return total
}

// longestCommonBlock finds the longest common contiguous run between a and b
// using a rolling DP row. Ties resolve to the earliest position in a, then b,
// which keeps the ratio deterministic for equal-length alternatives.
func longestCommonBlock(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					ai = i - size
					bi = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return ai, bi, size
}

// Deduper suppresses near-duplicate texts within one retrieval batch. Texts
// are checked against a rolling window of previously accepted texts; a
// similarity ratio at or above the threshold marks the text as a duplicate
// and it is never admitted, even if it would score higher than the text it
// duplicates. First-accepted wins — callers feed texts in descending score
// order so the best instance of each duplicate group survives. Suppressing
// a duplicate must not lose its provenance, so Match identifies which
// accepted text it collapsed into.
type Deduper struct {
	threshold float64
	window    []windowEntry
	maxWindow int
	accepted  int
}

// windowEntry pairs a normalized accepted text with its acceptance index so
// a match stays attributable to the survivor even after the window slides.
type windowEntry struct {
	norm string
	idx  int
}

// NewDeduper creates a Deduper with the given similarity threshold
// (typically 0.8).
func NewDeduper(threshold float64) *Deduper {
	return &Deduper{threshold: threshold, maxWindow: defaultDedupWindow}
}

// Match reports whether text near-duplicates an already-accepted text and,
// when it does, the acceptance index of that survivor. Match never admits.
func (d *Deduper) Match(text string) (int, bool) {
	norm := NormalizeText(text)
	for _, e := range d.window {
		if ratioAtLeast(norm, e.norm, d.threshold) {
			return e.idx, true
		}
	}
	return 0, false
}

// Admit adds text to the rolling window of accepted texts.
func (d *Deduper) Admit(text string) {
	d.window = append(d.window, windowEntry{norm: NormalizeText(text), idx: d.accepted})
	d.accepted++
	if len(d.window) > d.maxWindow {
		d.window = d.window[1:]
	}
}

// IsNearDuplicate reports whether text duplicates an already-accepted text.
// Non-duplicates are admitted into the rolling window as a side effect.
func (d *Deduper) IsNearDuplicate(text string) bool {
	if _, dup := d.Match(text); dup {
		return true
	}
	d.Admit(text)
	return false
}

// ratioAtLeast short-circuits the expensive block matching when the length
// difference alone caps the ratio below the threshold.
func ratioAtLeast(a, b string, threshold float64) bool {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 && lb == 0 {
		return true
	}
	shorter := la
	if lb < la {
		shorter = lb
	}
	// Best case every rune of the shorter text matches.
	if 2.0*float64(shorter)/float64(la+lb) < threshold {
		return false
	}
	return 2.0*float64(matchedLength(ra, rb))/float64(la+lb) >= threshold
}
