// Package posting publishes candidate posts through a browser session.
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
	"NewsPoster/internal/retry"
)

// State is a posting session state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateReady           State = "ready"
	StateComposing       State = "composing"
	StateSubmitting      State = "submitting"
	StateConfirmed       State = "confirmed"
	StateSubmitFailed    State = "submit_failed"
	StateSessionExpired  State = "session_expired"
)

var transitions = map[State][]State{
	StateUnauthenticated: {StateAuthenticating},
	StateAuthenticating:  {StateReady, StateUnauthenticated},
	StateReady:           {StateComposing, StateSessionExpired},
	StateComposing:       {StateSubmitting, StateSessionExpired, StateSubmitFailed, StateReady},
	StateSubmitting:      {StateConfirmed, StateSubmitFailed, StateSessionExpired, StateSubmitting},
	StateConfirmed:       {StateReady},
	StateSubmitFailed:    {StateReady},
	StateSessionExpired:  {StateAuthenticating},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Credentials log the agent in.
type Credentials struct {
	Username string
	Password string
}

// Config controls a posting session.
type Config struct {
	Credentials Credentials
	Site        Site
	Strategies  []StrategyKind
	Timing      Timing
	// PacingInterval is the minimum time between two submissions.
	PacingInterval time.Duration
	// MaxPosts caps successful posts per run; zero means no cap.
	MaxPosts      int
	PlatformLimit int
	AuthAttempts  int
	AuthBackoff   time.Duration
	// SubmitTimeout bounds one action sequence. Submissions are not interrupted
	// by run cancellation.
	SubmitTimeout time.Duration
	// OnTransition observes state changes.
	OnTransition func(from, to State)
}

func (c Config) withDefaults() Config {
	if len(c.Strategies) == 0 {
		c.Strategies = DefaultStrategies
	}
	if c.Site.LoginURL == "" {
		c.Site = DefaultSite()
	}
	c.Timing = c.Timing.withDefaults()
	if c.AuthAttempts <= 0 {
		c.AuthAttempts = 3
	}
	if c.AuthBackoff <= 0 {
		c.AuthBackoff = 2 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 90 * time.Second
	}
	if c.PlatformLimit <= 0 {
		c.PlatformLimit = 280
	}
	return c
}

// errPacingInterrupted reports a cancellation observed while waiting for the
// next submission slot. Nothing was submitted for the item.
var errPacingInterrupted = errors.New("cancelled while pacing")

// Agent owns the single browser session of a posting run.
type Agent struct {
	cfg     Config
	driver  ports.BrowserDriver
	limiter *rate.Limiter
	logger  *slog.Logger
	state   State
}

// NewAgent builds an agent in the Unauthenticated state.
func NewAgent(cfg Config, driver ports.BrowserDriver, logger *slog.Logger) (*Agent, error) {
	if driver == nil {
		return nil, errors.New("posting: browser driver is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.PacingInterval > 0 {
		limit = rate.Every(cfg.PacingInterval)
	}
	return &Agent{
		cfg:     cfg,
		driver:  driver,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "posting"),
		state:   StateUnauthenticated,
	}, nil
}

// State returns the current session state.
func (a *Agent) State() State {
	return a.state
}

func (a *Agent) transition(to State) {
	from := a.state
	if from == to && to != StateSubmitting {
		return
	}
	if !CanTransition(from, to) {
		a.logger.Error("invalid state transition", "from", from, "to", to)
	}
	a.state = to
	a.logger.Debug("state changed", "from", from, "to", to)
	if a.cfg.OnTransition != nil {
		a.cfg.OnTransition(from, to)
	}
}

// Run posts candidates strictly in order. Item failures are recorded and the
// run continues; only an authentication failure ends it early. Cancellation is
// honoured between items.
func (a *Agent) Run(ctx context.Context, posts []domain.CandidatePost) domain.PostingRun {
	run := domain.PostingRun{Run: domain.NewRun(domain.StagePost), Outcomes: []domain.PostOutcome{}}
	logger := a.logger.With("run_id", run.ID)
	defer func() {
		run.FinalState = string(a.state)
		run.Finish()
		logger.Info("posting finished",
			"attempted", run.Stats.Attempted,
			"posted", run.Stats.Succeeded,
			"failed", run.Stats.Failed,
			"skipped", run.Stats.Skipped,
			"state", a.state)
	}()

	if len(posts) == 0 {
		logger.Info("nothing to post")
		return run
	}

	if a.state != StateReady {
		if err := a.authenticate(ctx); err != nil {
			logger.Error("authentication failed", "error", err)
			run.Fatal = err.Error()
			return run
		}
	}

	posted := 0
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			logger.Warn("posting cancelled", "error", err)
			return run
		}
		if a.cfg.MaxPosts > 0 && posted >= a.cfg.MaxPosts {
			logger.Info("post cap reached", "max_posts", a.cfg.MaxPosts)
			return run
		}

		text := post.BodyWithTags
		if text == "" {
			text = post.Render()
		}
		if text == "" {
			err := errors.New("empty post text")
			run.Outcomes = append(run.Outcomes, outcome(post, domain.PostSkipped, 0, "", err))
			run.Stats.Skip(err)
			continue
		}
		if n := utf8.RuneCountInString(text); n > a.cfg.PlatformLimit {
			err := fmt.Errorf("post has %d characters, limit is %d", n, a.cfg.PlatformLimit)
			run.Outcomes = append(run.Outcomes, outcome(post, domain.PostSkipped, 0, "", err))
			run.Stats.Skip(err)
			continue
		}

		result, err := a.publish(ctx, post, text, logger)
		if errors.Is(err, errPacingInterrupted) {
			logger.Warn("posting cancelled", "error", err)
			return run
		}
		run.Outcomes = append(run.Outcomes, result)
		switch {
		case err != nil && errors.Is(err, domain.ErrAuth):
			run.Stats.Failure(err)
			run.Fatal = err.Error()
			logger.Error("re-authentication failed", "error", err)
			return run
		case result.Status == domain.PostPosted:
			posted++
			run.Stats.Success()
		default:
			run.Stats.Failure(err)
		}
	}
	return run
}

// authenticate logs in, retrying up to AuthAttempts times.
func (a *Agent) authenticate(ctx context.Context) error {
	a.transition(StateAuthenticating)
	if a.cfg.Credentials.Username == "" || a.cfg.Credentials.Password == "" {
		a.transition(StateUnauthenticated)
		return fmt.Errorf("%w: missing credentials", domain.ErrAuth)
	}

	policy := retry.LinearBackoff(a.cfg.AuthAttempts, a.cfg.AuthBackoff)
	policy.Classify = func(err error) domain.Outcome {
		if errors.Is(err, context.Canceled) {
			return domain.OutcomeFatal
		}
		return domain.OutcomeRetryable
	}
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		a.logger.Warn("login attempt failed", "attempt", attempt, "delay", delay, "error", err)
	}

	actions := loginSequence(a.cfg.Site, a.cfg.Credentials, a.cfg.Timing)
	_, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		_, err := a.perform(ctx, actions)
		return err
	})
	if err != nil {
		a.transition(StateUnauthenticated)
		return fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}

	a.transition(StateReady)
	a.logger.Info("session established")
	return nil
}

// perform runs one sequence detached from run cancellation but bounded by SubmitTimeout.
func (a *Agent) perform(ctx context.Context, actions []ports.Action) (ports.ActionResult, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.SubmitTimeout)
	defer cancel()
	return a.driver.Perform(callCtx, actions)
}

// publish drives one item from Ready back to Ready. A session expiry triggers
// re-authentication and the same item is resumed.
func (a *Agent) publish(ctx context.Context, post domain.CandidatePost, text string, logger *slog.Logger) (domain.PostOutcome, error) {
	logger = logger.With("url", post.ArticleURL)
	attempts := 0
	recoveries := 0
	var lastErr error

	for {
		a.transition(StateComposing)
		_, err := a.perform(ctx, composeSequence(a.cfg.Site, a.cfg.Timing))
		if err == nil {
			var strategy StrategyKind
			strategy, attempts, err = a.submit(ctx, text, attempts, logger)
			if err == nil {
				a.transition(StateConfirmed)
				logger.Info("post confirmed", "strategy", strategy, "attempts", attempts)
				a.transition(StateReady)
				return outcome(post, domain.PostPosted, attempts, string(strategy), nil), nil
			}
		}
		lastErr = err

		if errors.Is(err, errPacingInterrupted) {
			a.transition(StateReady)
			return domain.PostOutcome{}, err
		}
		if !errors.Is(err, domain.ErrSessionExpired) {
			a.transition(StateSubmitFailed)
			logger.Warn("post failed", "attempts", attempts, "error", err)
			a.transition(StateReady)
			return outcome(post, domain.PostFailed, attempts, "", err), err
		}

		a.transition(StateSessionExpired)
		recoveries++
		if recoveries > a.cfg.AuthAttempts {
			err = fmt.Errorf("%w: session keeps expiring: %w", domain.ErrAuth, lastErr)
			a.transition(StateAuthenticating)
			a.transition(StateUnauthenticated)
			return outcome(post, domain.PostFailed, attempts, "", err), err
		}
		logger.Warn("session expired, re-authenticating")
		if err := a.authenticate(context.WithoutCancel(ctx)); err != nil {
			return outcome(post, domain.PostFailed, attempts, "", err), err
		}
	}
}

// submit waits for the pacing slot, then tries each strategy's sequences in
// order. It stops early on a session expiry.
func (a *Agent) submit(ctx context.Context, text string, attempts int, logger *slog.Logger) (StrategyKind, int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", attempts, fmt.Errorf("%w: %w", errPacingInterrupted, err)
	}
	var errs []error
	for _, strategy := range a.cfg.Strategies {
		for _, actions := range strategy.sequences(a.cfg.Site, text, a.cfg.Timing) {
			a.transition(StateSubmitting)
			attempts++
			_, err := a.perform(ctx, actions)
			if err == nil {
				return strategy, attempts, nil
			}
			if errors.Is(err, domain.ErrSessionExpired) {
				return "", attempts, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", strategy, err))
		}
		logger.Debug("strategy exhausted", "strategy", strategy)
	}
	return "", attempts, fmt.Errorf("%w: all strategies failed: %w", domain.ErrAutomation, errors.Join(errs...))
}

func outcome(post domain.CandidatePost, status domain.PostStatus, attempts int, strategy string, err error) domain.PostOutcome {
	result := domain.PostOutcome{
		Candidate:    post,
		Status:       status,
		AttemptCount: attempts,
		Strategy:     strategy,
		FinishedAt:   time.Now().UTC(),
	}
	if err != nil {
		result.LastError = err.Error()
	}
	return result
}
