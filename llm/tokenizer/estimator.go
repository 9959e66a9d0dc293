package tokenizer

import "unicode/utf8"

// entryOverhead 每条消息的固定开销 (角色标记, 分隔符).
const entryOverhead = 4

// Estimator is a character-count-based token estimator.
// It distinguishes CJK and ASCII characters for better accuracy
// compared to a naive len/4 approach: CJK text runs ~1.5 chars per
// token while Latin text runs ~4.
type Estimator struct{}

// NewEstimator creates the default heuristic estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	estimated := int(float64(cjkCount)/1.5 + float64(totalChars-cjkCount)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

func (e *Estimator) CountEntry(entry Entry) int {
	if entry.Content == "" {
		return 0
	}
	return e.CountTokens(entry.Content) + entryOverhead
}

func (e *Estimator) CountEntries(entries []Entry) int {
	total := 0
	for _, entry := range entries {
		total += e.CountEntry(entry)
	}
	return total
}

func (e *Estimator) Name() string { return "estimator" }

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
