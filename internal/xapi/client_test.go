package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crisis-tweet-etl/internal/config"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
)

const testBaseURL = "https://api.test"

func newTestClient(t *testing.T, tokens []string) (*Client, *Rotator) {
	t.Helper()

	rotator, err := NewRotator(tokens, testLogger())
	require.NoError(t, err)

	cfg := &config.Config{
		TwitterBaseURL: testBaseURL,
		FetchTimeout:   5 * time.Second,
		MaxRetries:     3,
		BackoffFactor:  0, // no sleeping between retries in tests
	}
	c := NewClient(cfg, rotator, nil, observability.NewMetricsForTesting(), testLogger())

	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	return c, rotator
}

func TestClient_GetSuccess(t *testing.T) {
	c, _ := newTestClient(t, []string{"tok"})

	var gotAuth string
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/2/tweets/search/recent",
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			return httpmock.NewStringResponse(http.StatusOK, `{"data":[]}`), nil
		})

	body, err := c.Get(context.Background(), "/2/tweets/search/recent", url.Values{"query": {"#fire"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_RateLimitRotatesAndRetries(t *testing.T) {
	c, rotator := newTestClient(t, []string{"first", "second"})

	var auths []string
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/2/tweets/search/recent",
		func(req *http.Request) (*http.Response, error) {
			auths = append(auths, req.Header.Get("Authorization"))
			if len(auths) == 1 {
				resp := httpmock.NewStringResponse(http.StatusTooManyRequests, `{"title":"Too Many Requests"}`)
				resp.Header.Set("x-rate-limit-reset", "1750000000")
				return resp, nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"data":[]}`), nil
		})

	_, err := c.Get(context.Background(), "/2/tweets/search/recent", url.Values{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer first", "Bearer second"}, auths)

	status := rotator.Status()
	assert.Equal(t, 1, status.CurrentIndex)
	assert.Equal(t, time.Unix(1750000000, 0).UTC(), status.RateLimits[0])
}

func TestClient_RateLimitExhausted(t *testing.T) {
	c, _ := newTestClient(t, []string{"only"})

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/2/tweets/search/recent",
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{}`))

	_, err := c.Get(context.Background(), "/2/tweets/search/recent", url.Values{})
	assert.ErrorIs(t, err, ErrRateLimitExhausted)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_ServerErrorRetriesToBudget(t *testing.T) {
	c, _ := newTestClient(t, []string{"tok"})

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/2/tweets/search/recent",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `upstream down`))

	_, err := c.Get(context.Background(), "/2/tweets/search/recent", url.Values{})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestClient_ServerErrorRecovers(t *testing.T) {
	c, _ := newTestClient(t, []string{"tok"})

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/2/tweets/search/recent",
		httpmock.ResponderFromMultipleResponses([]*http.Response{
			httpmock.NewStringResponse(http.StatusInternalServerError, `oops`),
			httpmock.NewStringResponse(http.StatusOK, `{"data":[]}`),
		}))

	body, err := c.Get(context.Background(), "/2/tweets/search/recent", url.Values{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestClient_ClientErrorFailsImmediately(t *testing.T) {
	c, _ := newTestClient(t, []string{"tok"})

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/2/tweets/search/recent",
		httpmock.NewStringResponder(http.StatusBadRequest, `{"title":"Invalid Request"}`))

	_, err := c.Get(context.Background(), "/2/tweets/search/recent", url.Values{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "Invalid Request")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_TransportErrorRetriesToBudget(t *testing.T) {
	c, _ := newTestClient(t, []string{"tok"})

	boom := errors.New("connection reset")
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/2/tweets/search/recent",
		httpmock.NewErrorResponder(boom))

	_, err := c.Get(context.Background(), "/2/tweets/search/recent", url.Values{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestClient_BackoffGrowsWithAttempt(t *testing.T) {
	c := &Client{backoffFactor: 1.5}
	assert.Equal(t, 1500*time.Millisecond, c.backoff(1))
	assert.Equal(t, 3*time.Second, c.backoff(2))
	assert.Equal(t, 4500*time.Millisecond, c.backoff(3))
}

func TestClient_SleepCancelled(t *testing.T) {
	cfg := &config.Config{TwitterBaseURL: testBaseURL, FetchTimeout: time.Second, MaxRetries: 3, BackoffFactor: 1}
	rotator, err := NewRotator([]string{"tok"}, testLogger())
	require.NoError(t, err)
	c := NewClient(cfg, rotator, nil, observability.NewMetricsForTesting(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, c.sleep(ctx, time.Minute))
}

func TestClient_SuccessAuditRecordsRetries(t *testing.T) {
	dir := t.TempDir()
	successPath := filepath.Join(dir, "success.json")
	trail := NewTrail(filepath.Join(dir, "history.json"), successPath, clockwork.NewRealClock(), testLogger())

	rotator, err := NewRotator([]string{"tok"}, testLogger())
	require.NoError(t, err)
	cfg := &config.Config{
		TwitterBaseURL: testBaseURL,
		FetchTimeout:   5 * time.Second,
		MaxRetries:     3,
		BackoffFactor:  0,
	}
	c := NewClient(cfg, rotator, trail, observability.NewMetricsForTesting(), testLogger())

	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/2/tweets/search/recent",
		httpmock.ResponderFromMultipleResponses([]*http.Response{
			httpmock.NewStringResponse(http.StatusInternalServerError, `{"title":"Internal Error"}`),
			httpmock.NewStringResponse(http.StatusOK, `{"data":[{"id":"1"},{"id":"2"}],"meta":{"result_count":2}}`),
		}))

	_, err = c.Get(context.Background(), "/2/tweets/search/recent", url.Values{"query": {"#fire"}})
	require.NoError(t, err)

	raw, err := os.ReadFile(successPath)
	require.NoError(t, err)

	var entries []auditEntry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)

	var rec SuccessRecord
	require.NoError(t, json.Unmarshal(entries[0].Data, &rec))
	assert.Equal(t, 2, rec.Attempt)
	assert.Equal(t, http.StatusOK, rec.StatusCode)
	assert.Equal(t, 2, rec.ResultCount)
	assert.Greater(t, rec.DurationSeconds, 0.0)
	assert.JSONEq(t, `{"result_count":2}`, string(rec.Meta))
}
