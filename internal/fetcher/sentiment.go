package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/storage"
)

const sentimentPath = "/sentiment"

// SentimentOptions parameterise the social-sentiment fetcher.
type SentimentOptions struct {
	BaseURL   string
	APIKey    string
	Symbols   []string
	Platforms []string
	Timeout   time.Duration
}

// Sentiment fetches per-platform mention aggregates from a social
// metrics API.
type Sentiment struct {
	opts    SentimentOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSentiment constructs a sentiment fetcher.
func NewSentiment(opts SentimentOptions, logger zerolog.Logger) *Sentiment {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Sentiment{
		opts:    opts,
		logger:  logger.With().Str("component", "sentiment_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchSentiment retrieves one aggregate per (platform, symbol) pair in
// a single request.
func (f *Sentiment) FetchSentiment(ctx context.Context) ([]storage.SentimentSample, error) {
	if f.baseURL == "" {
		return nil, errors.New("sentiment base url not configured")
	}
	if len(f.opts.Symbols) == 0 {
		return nil, errors.New("no symbols configured")
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(f.opts.Symbols, ","))
	if len(f.opts.Platforms) > 0 {
		params.Set("platforms", strings.Join(f.opts.Platforms, ","))
	}

	endpoint := f.baseURL + sentimentPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.opts.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, unavailable("sentiment", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("sentiment", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("sentiment", resp.StatusCode, payload)
	}

	var body struct {
		Data []struct {
			Platform  string  `json:"platform"`
			Symbol    string  `json:"symbol"`
			Score     float64 `json:"sentiment_score"`
			Mentions  int64   `json:"mention_count"`
			Positive  int64   `json:"positive_mentions"`
			Negative  int64   `json:"negative_mentions"`
			Neutral   int64   `json:"neutral_mentions"`
			Timestamp int64   `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, malformed("sentiment", err)
	}

	samples := make([]storage.SentimentSample, 0, len(body.Data))
	for _, raw := range body.Data {
		ts := time.Now().UTC().Truncate(time.Minute)
		if raw.Timestamp > 0 {
			ts = time.Unix(raw.Timestamp, 0).UTC()
		}
		samples = append(samples, storage.SentimentSample{
			Timestamp:        ts,
			Platform:         raw.Platform,
			Symbol:           strings.ToUpper(raw.Symbol),
			SentimentScore:   raw.Score,
			MentionCount:     raw.Mentions,
			PositiveMentions: raw.Positive,
			NegativeMentions: raw.Negative,
			NeutralMentions:  raw.Neutral,
		})
	}

	return samples, nil
}

var _ SentimentSource = (*Sentiment)(nil)
