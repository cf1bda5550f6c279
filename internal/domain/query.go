package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// SearchCriteria holds the structured filters mapped into a recent-search
// query string by BuildSearchQuery.
type SearchCriteria struct {
	Hashtag         string
	Keywords        []string
	IncludeRetweets bool
	LangHint        string
	GeoPoint        *Geo
	RadiusKm        float64
}

// BuildSearchQuery assembles a v2 recent-search query from the criteria.
//
// Clause order: hashtag, OR-group of keywords (multi-word tokens quoted),
// -is:retweet unless retweets are included, lang hint, point_radius. The geo
// clause uses lon-before-lat order and is only emitted when both a point and
// a radius are supplied. An empty query is invalid upstream, so "(*)" is
// returned as a match-all placeholder when nothing applies.
func BuildSearchQuery(c SearchCriteria) string {
	var parts []string

	if c.Hashtag != "" {
		h := c.Hashtag
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		parts = append(parts, h)
	}

	var kwParts []string
	for _, k := range c.Keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.IndexFunc(k, unicode.IsSpace) >= 0 {
			kwParts = append(kwParts, `"`+k+`"`)
		} else {
			kwParts = append(kwParts, k)
		}
	}
	if len(kwParts) > 0 {
		parts = append(parts, "("+strings.Join(kwParts, " OR ")+")")
	}

	if !c.IncludeRetweets {
		parts = append(parts, "-is:retweet")
	}

	if c.LangHint != "" {
		parts = append(parts, "lang:"+c.LangHint)
	}

	if c.GeoPoint != nil && c.RadiusKm > 0 {
		parts = append(parts, fmt.Sprintf("point_radius:[%.6f %.6f %.2fkm]",
			c.GeoPoint.Lon, c.GeoPoint.Lat, c.RadiusKm))
	}

	if len(parts) == 0 {
		return "(*)"
	}

	return strings.Join(parts, " ")
}
