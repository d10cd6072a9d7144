package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	insertSentimentSampleSQL = `INSERT INTO sentiment_samples (
        ts, platform, symbol, sentiment_score, mention_count,
        positive_mentions, negative_mentions, neutral_mentions
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (ts, platform, symbol) DO NOTHING;`

	avgSentimentSinceSQL = `SELECT AVG(sentiment_score)
    FROM sentiment_samples
    WHERE symbol = $1 AND ts >= $2;`

	mentionVolumeSinceSQL = `SELECT COALESCE(SUM(mention_count), 0)
    FROM sentiment_samples
    WHERE symbol = $1 AND ts >= $2;`

	deleteSentimentBeforeSQL = `DELETE FROM sentiment_samples WHERE ts < $1;`
)

// InsertSentimentSamples appends samples, skipping replayed keys.
func (s *Store) InsertSentimentSamples(ctx context.Context, samples []SentimentSample) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var written int64
	for _, sample := range samples {
		tag, execErr := pool.Exec(ctx, insertSentimentSampleSQL,
			sample.Timestamp,
			sample.Platform,
			sample.Symbol,
			sample.SentimentScore,
			sample.MentionCount,
			sample.PositiveMentions,
			sample.NegativeMentions,
			sample.NeutralMentions,
		)
		if execErr != nil {
			return written, fmt.Errorf("insert sentiment sample %s/%s: %w", sample.Platform, sample.Symbol, execErr)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

// AvgSentimentSince averages sentiment for a symbol across platforms.
// Returns nil when no samples exist in the window.
func (s *Store) AvgSentimentSince(ctx context.Context, symbol string, since time.Time) (*float64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var avg *float64
	if scanErr := pool.QueryRow(ctx, avgSentimentSinceSQL, symbol, since).Scan(&avg); scanErr != nil {
		return nil, fmt.Errorf("avg sentiment since: %w", scanErr)
	}
	return avg, nil
}

// MentionVolumeSince sums mention counts for a symbol.
func (s *Store) MentionVolumeSince(ctx context.Context, symbol string, since time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var total int64
	if scanErr := pool.QueryRow(ctx, mentionVolumeSinceSQL, symbol, since).Scan(&total); scanErr != nil {
		return 0, fmt.Errorf("mention volume since: %w", scanErr)
	}
	return total, nil
}

// DeleteSentimentSamplesBefore prunes samples past the retention horizon.
func (s *Store) DeleteSentimentSamplesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSentimentBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete sentiment samples before: %w", execErr)
	}
	return nil
}
