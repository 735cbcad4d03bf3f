package ports

import (
	"context"
	"time"

	"NewsPoster/internal/domain"
)

// FetchResult is the raw response of a source fetch.
type FetchResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
	FinalURL    string
}

// SourceFetcher downloads a document. Transient failures wrap domain.ErrNetwork.
type SourceFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (FetchResult, error)
}

// ContentExtractor turns raw HTML into article fields or fails with domain.ErrExtraction.
type ContentExtractor interface {
	Extract(pageURL string, html []byte) (domain.ArticleFields, error)
}

// LanguageModel generates text from a prompt. Failures wrap domain.ErrGeneration.
type LanguageModel interface {
	Name() string
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Analyzer derives signals from an article. Implementations may fail; callers degrade.
type Analyzer interface {
	Analyze(ctx context.Context, article domain.Article) (domain.AnalysisResult, error)
}

// ActionKind enumerates the UI operations a browser driver understands.
type ActionKind string

const (
	ActionNavigate    ActionKind = "navigate"
	ActionWaitVisible ActionKind = "wait_visible"
	ActionClick       ActionKind = "click"
	ActionFill        ActionKind = "fill"
	ActionShortcut    ActionKind = "shortcut"
	ActionPause       ActionKind = "pause"
)

// Action is a single step of a UI action sequence.
type Action struct {
	Kind     ActionKind
	Selector string
	Value    string
	Timeout  time.Duration
	// Optional actions do not fail the sequence when they time out.
	Optional bool
}

// ActionResult describes the page after a sequence completed.
type ActionResult struct {
	CurrentURL string
}

// BrowserDriver executes action sequences against a live session. A redirect to
// the login page must surface as an error wrapping domain.ErrSessionExpired.
type BrowserDriver interface {
	Perform(ctx context.Context, actions []Action) (ActionResult, error)
	Close() error
}

// FingerprintStore is the persistent backing set of the dedup cache.
type FingerprintStore interface {
	Load(ctx context.Context) ([]domain.Fingerprint, error)
	Save(ctx context.Context, fingerprints []domain.Fingerprint) error
}

// RecordStore persists stage outputs so that stages can be re-run independently.
type RecordStore interface {
	SaveCrawl(ctx context.Context, run domain.CrawlRun) error
	LoadCrawl(ctx context.Context) ([]domain.AnalyzedArticle, error)
	SavePosts(ctx context.Context, run domain.GenerationRun) error
	LoadPosts(ctx context.Context) ([]domain.CandidatePost, error)
	SaveOutcomes(ctx context.Context, run domain.PostingRun) error
	LoadOutcomes(ctx context.Context) ([]domain.PostOutcome, error)
}

// Event is a timestamped run log entry.
type Event struct {
	Time    time.Time         `json:"time"`
	RunID   string            `json:"run_id"`
	Stage   domain.Stage      `json:"stage"`
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// EventLog appends run events.
type EventLog interface {
	Append(ctx context.Context, events ...Event) error
}
