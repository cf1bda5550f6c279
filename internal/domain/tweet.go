package domain

import (
	"encoding/json"
	"time"
)

// Tweet is one fetched item from the search API, immutable once constructed.
// Field names follow the v2 API response shape so stored snapshots stay
// comparable with the upstream objects.
type Tweet struct {
	ID                 string          `json:"id"`
	Text               string          `json:"text"`
	CreatedAt          string          `json:"created_at,omitempty"`
	Lang               string          `json:"lang,omitempty"`
	AuthorID           string          `json:"author_id,omitempty"`
	AuthorUsername     string          `json:"author_username,omitempty"`
	ConversationID     string          `json:"conversation_id,omitempty"`
	PublicMetrics      map[string]int  `json:"public_metrics,omitempty"`
	Entities           json.RawMessage `json:"entities,omitempty"`
	Geo                *TweetGeo       `json:"geo,omitempty"`
	Place              *Place          `json:"place,omitempty"`
	ReferencedTweets   json.RawMessage `json:"referenced_tweets,omitempty"`
	ContextAnnotations json.RawMessage `json:"context_annotations,omitempty"`
	Raw                RawSnapshot     `json:"raw"`
}

// TweetGeo carries the geo reference attached to a tweet.
type TweetGeo struct {
	PlaceID string `json:"place_id,omitempty"`
}

// Place is the resolved place object from the API expansion.
type Place struct {
	ID          string `json:"id,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Name        string `json:"name,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	PlaceType   string `json:"place_type,omitempty"`
}

// RawSnapshot retains the near-raw API objects for auditing.
type RawSnapshot struct {
	Tweet  json.RawMessage `json:"tweet,omitempty"`
	Author json.RawMessage `json:"author,omitempty"`
	Place  json.RawMessage `json:"place,omitempty"`
}

// TweetMeta is the metadata subset carried through normalization.
type TweetMeta struct {
	CreatedAt      string         `json:"created_at,omitempty"`
	AuthorID       string         `json:"author_id,omitempty"`
	AuthorUsername string         `json:"author_username,omitempty"`
	PublicMetrics  map[string]int `json:"public_metrics,omitempty"`
	Place          *Place         `json:"place,omitempty"`
}

// NormalizedTweet is the canonical-text form produced by the normalizer.
// ID is empty when the input was a bare string rather than a fetched tweet.
type NormalizedTweet struct {
	ID        string     `json:"id,omitempty"`
	Text      string     `json:"text"`
	CleanText string     `json:"clean_text"`
	Lang      string     `json:"lang,omitempty"`
	Meta      *TweetMeta `json:"meta,omitempty"`
}

// LabeledTweet is a normalized tweet with its disaster label and the retained
// raw snapshot, as persisted to the JSONL store.
type LabeledTweet struct {
	NormalizedTweet
	Label bool        `json:"label"`
	Raw   RawSnapshot `json:"raw,omitempty"`
}

// Geo is a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ClassificationEvent is one served prediction as recorded in the event store.
type ClassificationEvent struct {
	ID                  string    `json:"id" db:"id"`
	CleanedTweet        string    `json:"cleaned_tweet" db:"cleaned_tweet"`
	IsRealDisaster      bool      `json:"is_real_disaster" db:"is_real_disaster"`
	DisasterProbability float64   `json:"disaster_probability" db:"disaster_probability"`
	EvaluatedAt         time.Time `json:"evaluated_at" db:"evaluated_at"`
}
