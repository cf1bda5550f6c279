package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText_Default(t *testing.T) {
	opts := DefaultNormalizeOptions()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "urls replaced with placeholder",
			in:   "Fire near the bridge https://t.co/abc123 stay safe",
			want: "fire near the bridge <url> stay safe",
		},
		{
			name: "www urls also replaced",
			in:   "see www.example.com/fire for updates",
			want: "see <url> for updates",
		},
		{
			name: "mentions become placeholder",
			in:   "Evacuations underway says @MayorOffice now",
			want: "evacuations underway says @user now",
		},
		{
			name: "email-like text keeps its at sign",
			in:   "contact help@example.org for shelter info",
			want: "contact help@example.org for shelter info",
		},
		{
			name: "hashtags kept with hash",
			in:   "Massive #earthquake downtown",
			want: "massive #earthquake downtown",
		},
		{
			name: "rt prefix stripped",
			in:   "RT @reporter: Flood waters rising fast",
			want: "flood waters rising fast",
		},
		{
			name: "html entities unescaped",
			in:   "fire &amp; smoke reported",
			want: "fire & smoke reported",
		},
		{
			name: "non latin scripts stripped, emoji kept",
			in:   "Fire 火事 in the city 🔥 now",
			want: "fire in the city 🔥 now",
		},
		{
			name: "accented latin removed by script filter",
			in:   "tornado près de Montréal area",
			want: "tornado pr s de montr al area",
		},
		{
			name: "whitespace collapsed and trimmed",
			in:   "  flood \t\n warning   issued  ",
			want: "flood warning issued",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CleanText(tt.in, opts)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanText_Drops(t *testing.T) {
	opts := DefaultNormalizeOptions()
	opts.MentionPlaceholder = nil // delete mentions entirely

	// "RT @a: hi" loses the RT prefix, leaving "hi" (2 runes < 3).
	_, ok := CleanText("RT @a: hi", opts)
	assert.False(t, ok)

	_, ok = CleanText("", DefaultNormalizeOptions())
	assert.False(t, ok)

	// Entirely non-Latin input collapses to nothing.
	_, ok = CleanText("地震です", DefaultNormalizeOptions())
	assert.False(t, ok)
}

func TestCleanText_Idempotent(t *testing.T) {
	opts := DefaultNormalizeOptions()

	inputs := []string{
		"RT @user123: Huge #flood https://t.co/x 火事 🔥 NEEDS help now",
		"Multiple   spaces &amp; CAPS with @Mentions and #Tags",
		"plain already clean text",
	}

	for _, in := range inputs {
		first, ok := CleanText(in, opts)
		require.True(t, ok, "input %q", in)
		second, ok := CleanText(first, opts)
		require.True(t, ok, "first pass %q", first)
		assert.Equal(t, first, second)
	}
}

func TestCleanText_OptionToggles(t *testing.T) {
	base := DefaultNormalizeOptions()

	t.Run("urls deleted when placeholder nil", func(t *testing.T) {
		opts := base
		opts.URLPlaceholder = nil
		got, ok := CleanText("flood info https://t.co/abc here", opts)
		require.True(t, ok)
		assert.Equal(t, "flood info here", got)
	})

	t.Run("mentions kept verbatim", func(t *testing.T) {
		opts := base
		opts.KeepMentions = true
		got, ok := CleanText("thanks @RedCross for aid", opts)
		require.True(t, ok)
		assert.Equal(t, "thanks @redcross for aid", got)
	})

	t.Run("hashtags reduced to bare word", func(t *testing.T) {
		opts := base
		opts.KeepHashtags = false
		got, ok := CleanText("massive #earthquake downtown", opts)
		require.True(t, ok)
		assert.Equal(t, "massive earthquake downtown", got)
	})

	t.Run("case preserved", func(t *testing.T) {
		opts := base
		opts.Lowercase = false
		got, ok := CleanText("Massive Earthquake", opts)
		require.True(t, ok)
		assert.Equal(t, "Massive Earthquake", got)
	})

	t.Run("rt prefix kept", func(t *testing.T) {
		opts := base
		opts.StripRTPrefix = false
		opts.KeepMentions = true
		got, ok := CleanText("RT @reporter: flood warning", opts)
		require.True(t, ok)
		assert.Equal(t, "rt @reporter: flood warning", got)
	})

	t.Run("script filter off keeps other scripts", func(t *testing.T) {
		opts := base
		opts.ScriptFilter = false
		got, ok := CleanText("fire 火事 reported", opts)
		require.True(t, ok)
		assert.Equal(t, "fire 火事 reported", got)
	})
}

func TestNormalizeTweet(t *testing.T) {
	tweet := Tweet{
		ID:             "123",
		Text:           "RT @a: Huge #flood in town https://t.co/x",
		Lang:           "en",
		CreatedAt:      "2025-11-01T12:00:00Z",
		AuthorID:       "42",
		AuthorUsername: "reporter",
		PublicMetrics:  map[string]int{"retweet_count": 7},
		Place:          &Place{FullName: "Austin, TX", CountryCode: "US"},
	}

	nt, ok := NormalizeTweet(tweet, DefaultNormalizeOptions())
	require.True(t, ok)

	assert.Equal(t, "123", nt.ID)
	assert.Equal(t, tweet.Text, nt.Text, "original text is retained")
	assert.Equal(t, "huge #flood in town <url>", nt.CleanText)
	assert.Equal(t, "en", nt.Lang)
	require.NotNil(t, nt.Meta)
	assert.Equal(t, "42", nt.Meta.AuthorID)
	assert.Equal(t, "reporter", nt.Meta.AuthorUsername)
	assert.Equal(t, 7, nt.Meta.PublicMetrics["retweet_count"])
	require.NotNil(t, nt.Meta.Place)
	assert.Equal(t, "US", nt.Meta.Place.CountryCode)
}

func TestNormalizeText(t *testing.T) {
	nt, ok := NormalizeText("Plain STRING input", DefaultNormalizeOptions())
	require.True(t, ok)
	assert.Empty(t, nt.ID)
	assert.Nil(t, nt.Meta)
	assert.Equal(t, "plain string input", nt.CleanText)

	_, ok = NormalizeText("", DefaultNormalizeOptions())
	assert.False(t, ok)
}
