package domain

import "strings"

// LocationFilter restricts fetched tweets by place metadata after the fetch,
// separately from any server-side geo operator in the query.
//
// Two modes exist and deliberately keep their historical asymmetry:
//
//   - Match (plain term): a tweet passes when the term is a case-insensitive
//     substring of place.full_name or equals the country code. A tweet with
//     no place object fails.
//   - CountryCode / PlaceSubstr (structured): conditions are ANDed against the
//     place object; a tweet with no place object cannot be verified and fails.
//
// A zero-value filter applies nothing and every tweet passes.
type LocationFilter struct {
	Match       string
	CountryCode string
	PlaceSubstr string
}

// IsZero reports whether the filter has no criteria.
func (f *LocationFilter) IsZero() bool {
	return f == nil || (f.Match == "" && f.CountryCode == "" && f.PlaceSubstr == "")
}

// Allows reports whether a tweet with the given place metadata passes the filter.
func (f *LocationFilter) Allows(place *Place) bool {
	if f.IsZero() {
		return true
	}

	if f.Match != "" {
		want := strings.ToLower(f.Match)
		if place == nil {
			return false
		}
		fullName := strings.ToLower(place.FullName)
		countryCode := strings.ToLower(place.CountryCode)
		return strings.Contains(fullName, want) || want == countryCode
	}

	// Structured filter: no place metadata means the location cannot be
	// verified, so the tweet is excluded.
	if place == nil {
		return false
	}

	ok := true
	if f.CountryCode != "" {
		ok = ok && strings.EqualFold(place.CountryCode, f.CountryCode)
	}
	if f.PlaceSubstr != "" {
		ok = ok && strings.Contains(strings.ToLower(place.FullName), strings.ToLower(f.PlaceSubstr))
	}
	return ok
}
