package domain

import "strings"

// emojiRanges lists the Unicode blocks kept by the script filter. Everything
// outside ASCII and these blocks is replaced with a space.
var emojiRanges = [...][2]rune{
	{0x1F300, 0x1F5FF}, // Misc Symbols and Pictographs
	{0x1F600, 0x1F64F}, // Emoticons
	{0x1F680, 0x1F6FF}, // Transport & Map Symbols
	{0x1F700, 0x1F77F}, // Alchemical Symbols
	{0x1F780, 0x1F7FF}, // Geometric Shapes Extended
	{0x1F800, 0x1F8FF}, // Supplemental Arrows-C
	{0x1F900, 0x1F9FF}, // Supplemental Symbols and Pictographs
	{0x1FA70, 0x1FAFF}, // Symbols and Pictographs Extended-A
	{0x2600, 0x26FF},   // Misc symbols
	{0x2700, 0x27BF},   // Dingbats
}

// allowedPunct is the ASCII punctuation kept by the script filter.
const allowedPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// isAllowedRune reports whether r survives the script filter: ASCII letters
// and digits, space and tab, the allowed punctuation set, and the emoji
// blocks above. Accented Latin letters and non-Latin scripts are excluded.
func isAllowedRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r == ' ' || r == '\t':
		return true
	}
	if r < 0x80 {
		return strings.ContainsRune(allowedPunct, r)
	}
	for _, rg := range emojiRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}
