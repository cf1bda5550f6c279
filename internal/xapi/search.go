package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/crisis-tweet-etl/internal/domain"
)

// Field expansions requested on every search so stored snapshots carry the
// author and place objects alongside the tweet.
var (
	tweetFields = []string{
		"id", "text", "created_at", "lang", "author_id", "conversation_id",
		"public_metrics", "entities", "geo", "context_annotations",
		"referenced_tweets", "source",
	}
	userFields  = []string{"id", "name", "username", "verified", "public_metrics", "created_at", "entities"}
	placeFields = []string{"id", "full_name", "name", "country", "country_code", "geo", "place_type"}
)

// SearchRequest bounds one recent-search call.
type SearchRequest struct {
	Query      string
	MaxResults int
	StartTime  string // RFC3339
	EndTime    string // RFC3339
	SinceID    string
	UntilID    string
}

// searchResponse mirrors the v2 recent-search payload. Data and includes are
// kept raw so each tweet's snapshot can retain the exact API objects.
type searchResponse struct {
	Data     []json.RawMessage `json:"data"`
	Includes struct {
		Users  []json.RawMessage `json:"users"`
		Places []json.RawMessage `json:"places"`
	} `json:"includes"`
}

// apiTweet is the typed subset of a raw tweet object used for assembly.
type apiTweet struct {
	ID                 string           `json:"id"`
	Text               string           `json:"text"`
	CreatedAt          string           `json:"created_at"`
	Lang               string           `json:"lang"`
	AuthorID           string           `json:"author_id"`
	ConversationID     string           `json:"conversation_id"`
	PublicMetrics      map[string]int   `json:"public_metrics"`
	Entities           json.RawMessage  `json:"entities"`
	Geo                *domain.TweetGeo `json:"geo"`
	ReferencedTweets   json.RawMessage  `json:"referenced_tweets"`
	ContextAnnotations json.RawMessage  `json:"context_annotations"`
}

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SearchRecent runs one recent-search call and assembles the returned tweets
// with their expanded author and place objects. The raw API objects are
// retained on each tweet's snapshot.
func (c *Client) SearchRecent(ctx context.Context, req SearchRequest) ([]domain.Tweet, error) {
	params := url.Values{
		"query":        {req.Query},
		"max_results":  {strconv.Itoa(req.MaxResults)},
		"expansions":   {"author_id,geo.place_id"},
		"tweet.fields": {strings.Join(tweetFields, ",")},
		"user.fields":  {strings.Join(userFields, ",")},
		"place.fields": {strings.Join(placeFields, ",")},
	}
	if req.StartTime != "" {
		params.Set("start_time", req.StartTime)
	}
	if req.EndTime != "" {
		params.Set("end_time", req.EndTime)
	}
	if req.SinceID != "" {
		params.Set("since_id", req.SinceID)
	}
	if req.UntilID != "" {
		params.Set("until_id", req.UntilID)
	}

	body, err := c.Get(ctx, "/2/tweets/search/recent", params)
	if err != nil {
		return nil, err
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	users := make(map[string]json.RawMessage, len(payload.Includes.Users))
	usernames := make(map[string]string, len(payload.Includes.Users))
	for _, raw := range payload.Includes.Users {
		var u apiUser
		if err := json.Unmarshal(raw, &u); err != nil {
			continue
		}
		users[u.ID] = raw
		usernames[u.ID] = u.Username
	}

	placesRaw := make(map[string]json.RawMessage, len(payload.Includes.Places))
	places := make(map[string]*domain.Place, len(payload.Includes.Places))
	for _, raw := range payload.Includes.Places {
		var p domain.Place
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		placesRaw[p.ID] = raw
		places[p.ID] = &p
	}

	tweets := make([]domain.Tweet, 0, len(payload.Data))
	for _, raw := range payload.Data {
		var t apiTweet
		if err := json.Unmarshal(raw, &t); err != nil {
			c.logger.Warn("skipping undecodable tweet object", "error", err)
			continue
		}

		tweet := domain.Tweet{
			ID:                 t.ID,
			Text:               t.Text,
			CreatedAt:          t.CreatedAt,
			Lang:               t.Lang,
			AuthorID:           t.AuthorID,
			AuthorUsername:     usernames[t.AuthorID],
			ConversationID:     t.ConversationID,
			PublicMetrics:      t.PublicMetrics,
			Entities:           t.Entities,
			Geo:                t.Geo,
			ReferencedTweets:   t.ReferencedTweets,
			ContextAnnotations: t.ContextAnnotations,
			Raw: domain.RawSnapshot{
				Tweet:  raw,
				Author: users[t.AuthorID],
			},
		}
		if t.Geo != nil && t.Geo.PlaceID != "" {
			tweet.Place = places[t.Geo.PlaceID]
			tweet.Raw.Place = placesRaw[t.Geo.PlaceID]
		}

		tweets = append(tweets, tweet)
	}

	c.logger.Info("search results assembled",
		"tweets", len(tweets),
		"users", len(users),
		"places", len(places),
	)

	return tweets, nil
}
