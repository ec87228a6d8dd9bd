package domain

import "time"

// RateLimitBlock records that a model is unusable until BlockedUntil (epoch ms).
type RateLimitBlock struct {
	Model             string            `json:"model"`
	BlockedUntil      int64             `json:"blockedUntil"`
	RetryDelaySeconds float64           `json:"retryDelaySeconds"`
	QuotaMetric       string            `json:"quotaMetric"`
	QuotaID           string            `json:"quotaId"`
	QuotaDimensions   map[string]string `json:"quotaDimensions"`
	ErrorMessage      string            `json:"errorMessage"`
	RecordedAt        int64             `json:"recordedAt"`
}

// StageMetadata is the diagnostic record appended once per executed stage.
type StageMetadata struct {
	Stage      StageID `json:"stage"`
	Name       string  `json:"name"`
	Model      string  `json:"model,omitempty"`
	DurationMs int64   `json:"durationMs"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

// StageEvent is delivered to progress sinks after every stage.
type StageEvent struct {
	Stage    StageID       `json:"stage"`
	Name     string        `json:"name"`
	Result   StageResult   `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`
	Success  bool          `json:"success"`
}

// DurationMs is the stage duration in whole milliseconds.
func (e StageEvent) DurationMs() int64 {
	return e.Duration.Milliseconds()
}

// ReportMetadata describes how a report was produced.
type ReportMetadata struct {
	RunID             string          `json:"runId"`
	ModelProvider     string          `json:"modelProvider"`
	Model             string          `json:"model"`
	ModelsTried       []string        `json:"modelsTried,omitempty"`
	ArticlesAnalyzed  int             `json:"articlesAnalyzed"`
	TotalDurationMs   int64           `json:"totalDurationMs"`
	Stages            []StageMetadata `json:"stages"`
	AnalysisTimestamp time.Time       `json:"analysisTimestamp"`
}

// Report is the combined output of a completed analysis.
type Report struct {
	Stage1            ContextTrust       `json:"stage1"`
	Stage2            Consensus          `json:"stage2"`
	Stage3            Disputes           `json:"stage3"`
	Stage4            Perspectives       `json:"stage4"`
	Metadata          ReportMetadata     `json:"metadata"`
	ProcessedArticles []ProcessedArticle `json:"processedArticles"`
}

// Failed lists stages that were substituted with empty results.
func (r *Report) Failed() []StageMetadata {
	var out []StageMetadata
	for _, m := range r.Metadata.Stages {
		if !m.Success {
			out = append(out, m)
		}
	}
	return out
}
