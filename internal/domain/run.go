package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxErrorSamples bounds how many error messages a run summary keeps.
const MaxErrorSamples = 5

// Stage names a pipeline stage.
type Stage string

const (
	StageCrawl    Stage = "crawl"
	StageGenerate Stage = "generate"
	StagePost     Stage = "post"
)

// RunResult is the run-level verdict.
type RunResult string

const (
	ResultSuccess RunResult = "success"
	ResultPartial RunResult = "partial"
	ResultFailure RunResult = "failure"
	// ResultEmpty means there was nothing to do; it is reported but not a failure.
	ResultEmpty RunResult = "empty"
)

// RunStats counts per-item outcomes. It is not safe for concurrent use.
type RunStats struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Success counts one successful item.
func (s *RunStats) Success() {
	s.Attempted++
	s.Succeeded++
}

// Failure counts one failed item and samples its error.
func (s *RunStats) Failure(err error) {
	s.Attempted++
	s.Failed++
	s.Sample(err)
}

// Skip counts an item that was attempted but intentionally not produced.
func (s *RunStats) Skip(err error) {
	s.Attempted++
	s.Skipped++
	s.Sample(err)
}

// Sample keeps the first MaxErrorSamples error messages.
func (s *RunStats) Sample(err error) {
	if err == nil || len(s.Errors) >= MaxErrorSamples {
		return
	}
	s.Errors = append(s.Errors, err.Error())
}

// Merge adds other's counts and samples into s.
func (s *RunStats) Merge(other RunStats) {
	s.Attempted += other.Attempted
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	for _, msg := range other.Errors {
		if len(s.Errors) >= MaxErrorSamples {
			break
		}
		s.Errors = append(s.Errors, msg)
	}
}

// Result turns counts into a run-level verdict.
func (s RunStats) Result() RunResult {
	switch {
	case s.Attempted == 0:
		return ResultEmpty
	case s.Succeeded == 0:
		return ResultFailure
	case s.Succeeded == s.Attempted:
		return ResultSuccess
	default:
		return ResultPartial
	}
}

// Run holds the boundaries and counters shared by all batch runs.
type Run struct {
	ID         string    `json:"id"`
	Stage      Stage     `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Stats      RunStats  `json:"stats"`
	// Fatal carries the error that ended the run early, if any.
	Fatal string `json:"fatal,omitempty"`
}

// NewRun opens a run for the given stage.
func NewRun(stage Stage) Run {
	return Run{
		ID:        uuid.NewString(),
		Stage:     stage,
		StartedAt: time.Now().UTC(),
	}
}

// Finish closes the run boundary.
func (r *Run) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Duration is the wall time between the run boundaries.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Result reports failure for runs that ended on a fatal error.
func (r Run) Result() RunResult {
	if r.Fatal != "" {
		return ResultFailure
	}
	return r.Stats.Result()
}

// CategoryStats summarises one crawled category.
type CategoryStats struct {
	Articles        int               `json:"articles"`
	AvgWordCount    float64           `json:"avg_word_count"`
	SentimentCounts map[Sentiment]int `json:"sentiment_counts"`
	TopTopics       []string          `json:"top_topics"`
}

// CrawlRun is the output of the crawl coordinator.
type CrawlRun struct {
	Run
	Articles   []AnalyzedArticle        `json:"articles"`
	Categories map[string]CategoryStats `json:"categories"`
}

// GenerationRun is the output of the generation pipeline.
type GenerationRun struct {
	Run
	Posts []CandidatePost `json:"posts"`
}

// PostingRun is the output of the posting agent.
type PostingRun struct {
	Run
	Outcomes   []PostOutcome `json:"outcomes"`
	FinalState string        `json:"final_state"`
}
