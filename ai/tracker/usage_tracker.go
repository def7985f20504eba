// Package tracker records every chat-completion send in the ai_model_usage
// table and aggregates it for the usage views.
package tracker

import (
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
)

// Operation and entity labels written by the workbench.
const (
	OperationSend = "send"
	EntityContext = "context"
)

// ModelUsage is one recorded send.
type ModelUsage struct {
	ID                int        `json:"id" db:"id"`
	OperationType     string     `json:"operation_type" db:"operation_type"`
	EntityType        string     `json:"entity_type" db:"entity_type"`
	EntityID          string     `json:"entity_id" db:"entity_id"`
	ModelName         string     `json:"model_name" db:"model_name"`
	ModelProvider     string     `json:"model_provider" db:"model_provider"`
	ModelConfig       *string    `json:"model_config,omitempty" db:"model_config"`
	RequestTimestamp  time.Time  `json:"request_timestamp" db:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty" db:"response_timestamp"`
	TokensUsed        *int       `json:"tokens_used,omitempty" db:"tokens_used"`
	Cost              *float64   `json:"cost,omitempty" db:"cost"`
	Success           bool       `json:"success" db:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	Metadata          *string    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// SendMetadata is the JSON stored in the metadata column.
type SendMetadata struct {
	Origin        string `json:"origin,omitempty"`
	ContextLength int    `json:"context_length"`
	Choices       int    `json:"choices,omitempty"`
	HTTPStatus    int    `json:"http_status,omitempty"`
}

// Encode serializes m for the metadata column.
func (m SendMetadata) Encode() *string {
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// UsageTracker writes and aggregates usage rows.
type UsageTracker struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewUsageTracker creates a tracker over db. A nil logger is replaced by a nop.
func NewUsageTracker(db *sql.DB, log *zap.SugaredLogger) *UsageTracker {
	return &UsageTracker{db: db, logger: logger.OrNop(log)}
}

// TrackUsage records one send.
func (t *UsageTracker) TrackUsage(usage *ModelUsage) error {
	query := `
		INSERT INTO ai_model_usage (
			operation_type, entity_type, entity_id, model_name, model_provider,
			model_config, request_timestamp, response_timestamp, tokens_used,
			cost, success, error_message, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.Exec(query,
		usage.OperationType, usage.EntityType, usage.EntityID,
		usage.ModelName, usage.ModelProvider, usage.ModelConfig,
		usage.RequestTimestamp.UTC(), utcPtr(usage.ResponseTimestamp), usage.TokensUsed,
		usage.Cost, usage.Success, usage.ErrorMessage, usage.Metadata,
	)
	if err != nil {
		return errors.Wrapf(err, "record usage for %s", usage.ModelName)
	}

	t.logger.Debugw("Recorded usage",
		logger.FieldModel, usage.ModelName,
		"success", usage.Success,
	)
	return nil
}

// UsageStats is the aggregate over a period.
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int     `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
}

// GetUsageStats aggregates every send since the given time.
func (t *UsageTracker) GetUsageStats(since time.Time) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN success = 1 THEN 1 END) as successful_requests,
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0) as total_tokens,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as total_cost,
			COUNT(DISTINCT model_name) as unique_models
		FROM ai_model_usage
		WHERE request_timestamp >= ?`

	var stats UsageStats
	err := t.db.QueryRow(query, since.UTC()).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query usage stats")
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

// ModelBreakdown is the per-model share of successful sends.
type ModelBreakdown struct {
	ModelName         string   `json:"model_name"`
	ModelProvider     string   `json:"model_provider"`
	RequestCount      int      `json:"request_count"`
	TotalTokens       int      `json:"total_tokens"`
	TotalCost         float64  `json:"total_cost"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// GetModelBreakdown groups successful sends since the given time by model,
// most expensive first.
func (t *UsageTracker) GetModelBreakdown(since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT
			model_name,
			model_provider,
			COUNT(*) as request_count,
			SUM(COALESCE(tokens_used, 0)) as total_tokens,
			SUM(COALESCE(cost, 0)) as total_cost,
			AVG(CASE WHEN response_timestamp IS NOT NULL THEN
				(julianday(response_timestamp) - julianday(request_timestamp)) * 86400000
				ELSE NULL END) as avg_response_time_ms
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1
		GROUP BY model_name, model_provider
		ORDER BY total_cost DESC, model_name ASC`

	rows, err := t.db.Query(query, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query model breakdown")
	}
	defer rows.Close()

	breakdown := []ModelBreakdown{}
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.ModelName, &mb.ModelProvider, &mb.RequestCount,
			&mb.TotalTokens, &mb.TotalCost, &mb.AvgResponseTimeMs); err != nil {
			return nil, errors.Wrap(err, "scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}
	return breakdown, errors.Wrap(rows.Err(), "iterate model breakdown")
}

// TimeSeriesPoint is one day of activity.
type TimeSeriesPoint struct {
	Date     string  `json:"date"`
	Requests int     `json:"requests"`
	Cost     float64 `json:"cost"`
}

// GetTimeSeriesData returns per-day request counts and cost since the given time.
func (t *UsageTracker) GetTimeSeriesData(since time.Time) ([]TimeSeriesPoint, error) {
	query := `
		SELECT
			DATE(request_timestamp) as date,
			COUNT(*) as requests,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as cost
		FROM ai_model_usage
		WHERE request_timestamp >= ?
		GROUP BY DATE(request_timestamp)
		ORDER BY date ASC`

	rows, err := t.db.Query(query, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query time series")
	}
	defer rows.Close()

	points := []TimeSeriesPoint{}
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Date, &p.Requests, &p.Cost); err != nil {
			return nil, errors.Wrap(err, "scan time series")
		}
		points = append(points, p)
	}
	return points, errors.Wrap(rows.Err(), "iterate time series")
}

// Report bundles everything the usage views show for one period.
type Report struct {
	Days   int               `json:"days"`
	Since  time.Time         `json:"since"`
	Stats  *UsageStats       `json:"stats"`
	Models []ModelBreakdown  `json:"models"`
	Daily  []TimeSeriesPoint `json:"daily"`
}

// Report aggregates the last days days, counted back from now.
func (t *UsageTracker) Report(days int, now time.Time) (*Report, error) {
	if days <= 0 {
		return nil, errors.NewInvalidRequestError("days must be positive, got %d", days)
	}
	since := now.UTC().AddDate(0, 0, -days)

	stats, err := t.GetUsageStats(since)
	if err != nil {
		return nil, err
	}
	models, err := t.GetModelBreakdown(since)
	if err != nil {
		return nil, err
	}
	daily, err := t.GetTimeSeriesData(since)
	if err != nil {
		return nil, err
	}

	return &Report{Days: days, Since: since, Stats: stats, Models: models, Daily: daily}, nil
}

func utcPtr(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	u := ts.UTC()
	return &u
}
