package domain

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	urlRe = regexp.MustCompile(`(?i)https?://\S+|www\.\S+`)

	// mentionRe and hashtagRe capture the preceding non-word character (or
	// start of string) because RE2 has no lookbehind; replacements write the
	// prefix back via ${1}.
	mentionRe = regexp.MustCompile(`(^|[^0-9A-Za-z_])@([A-Za-z0-9_]{1,15})`)
	hashtagRe = regexp.MustCompile(`(^|[^0-9A-Za-z_])#([A-Za-z0-9_]+)`)

	rtPrefixRe     = regexp.MustCompile(`(?i)^RT\s+@[0-9A-Za-z_]+:\s*`)
	controlCharsRe = regexp.MustCompile(`[\x{0000}-\x{001F}\x{007F}-\x{009F}]`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// NormalizeOptions toggles the individual normalization stages. The stage
// order is fixed; options only switch stages on or off or choose their
// substitution tokens.
type NormalizeOptions struct {
	// URLPlaceholder replaces URL-shaped tokens; nil deletes them.
	URLPlaceholder *string
	// KeepMentions leaves @handles untouched. When false, mentions are
	// replaced by MentionPlaceholder, or deleted if that is nil.
	KeepMentions       bool
	MentionPlaceholder *string
	// KeepHashtags leaves #tags intact; otherwise the '#' is stripped and
	// the bare word kept.
	KeepHashtags  bool
	Lowercase     bool
	StripRTPrefix bool
	// ScriptFilter replaces every rune outside the ASCII/emoji allow-list
	// with a single space.
	ScriptFilter bool
	// MinLength is the minimum rune count of the cleaned text; shorter
	// results are dropped.
	MinLength int
}

// DefaultNormalizeOptions returns the option set used for model training
// data: URLs become "<URL>", mentions become "@user", hashtags and casing
// are canonicalized, non-Latin scripts are stripped.
func DefaultNormalizeOptions() NormalizeOptions {
	urlToken := "<URL>"
	mentionToken := "@user"
	return NormalizeOptions{
		URLPlaceholder:     &urlToken,
		MentionPlaceholder: &mentionToken,
		KeepHashtags:       true,
		Lowercase:          true,
		StripRTPrefix:      true,
		ScriptFilter:       true,
		MinLength:          3,
	}
}

// NormalizeTweet cleans a fetched tweet into its canonical form. The second
// return value is false when the tweet is dropped (empty input or cleaned
// text below the minimum length).
func NormalizeTweet(t Tweet, opts NormalizeOptions) (NormalizedTweet, bool) {
	clean, ok := CleanText(t.Text, opts)
	if !ok {
		return NormalizedTweet{}, false
	}
	return NormalizedTweet{
		ID:        t.ID,
		Text:      t.Text,
		CleanText: clean,
		Lang:      t.Lang,
		Meta: &TweetMeta{
			CreatedAt:      t.CreatedAt,
			AuthorID:       t.AuthorID,
			AuthorUsername: t.AuthorUsername,
			PublicMetrics:  t.PublicMetrics,
			Place:          t.Place,
		},
	}, true
}

// NormalizeText cleans a bare string with no tweet metadata attached.
func NormalizeText(raw string, opts NormalizeOptions) (NormalizedTweet, bool) {
	clean, ok := CleanText(raw, opts)
	if !ok {
		return NormalizedTweet{}, false
	}
	return NormalizedTweet{Text: raw, CleanText: clean}, true
}

// CleanText runs the normalization pipeline over raw text. Stages apply in a
// fixed order: NFC + HTML unescape, RT prefix strip, URL substitution,
// mention substitution, hashtag handling, lowercasing, script filtering,
// whitespace collapse. Returns false when the input is empty or the result
// is shorter than opts.MinLength runes.
func CleanText(raw string, opts NormalizeOptions) (string, bool) {
	if raw == "" {
		return "", false
	}

	txt := norm.NFC.String(raw)
	txt = html.UnescapeString(txt)

	if opts.StripRTPrefix {
		txt = rtPrefixRe.ReplaceAllString(txt, "")
	}

	if opts.URLPlaceholder == nil {
		txt = urlRe.ReplaceAllString(txt, "")
	} else {
		txt = urlRe.ReplaceAllString(txt, *opts.URLPlaceholder)
	}

	if !opts.KeepMentions {
		if opts.MentionPlaceholder == nil {
			txt = mentionRe.ReplaceAllString(txt, "${1}")
		} else {
			txt = mentionRe.ReplaceAllString(txt, "${1}"+*opts.MentionPlaceholder)
		}
	}

	if !opts.KeepHashtags {
		txt = hashtagRe.ReplaceAllString(txt, "${1}${2}")
	}

	if opts.Lowercase {
		txt = strings.ToLower(txt)
	}

	if opts.ScriptFilter {
		txt = stripDisallowedScripts(txt)
	}

	txt = strings.TrimSpace(whitespaceRe.ReplaceAllString(txt, " "))

	if utf8.RuneCountInString(txt) < opts.MinLength {
		return "", false
	}
	return txt, true
}

// stripDisallowedScripts replaces control characters and every rune outside
// the allow-list with a single space. Spaces rather than deletion keep
// adjacent tokens from merging; the later whitespace collapse cleans up runs.
func stripDisallowedScripts(s string) string {
	s = controlCharsRe.ReplaceAllString(s, " ")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isAllowedRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
