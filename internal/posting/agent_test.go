package posting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

type sequenceKind string

const (
	seqLogin    sequenceKind = "login"
	seqCompose  sequenceKind = "compose"
	seqInline   sequenceKind = "inline"
	seqAlt      sequenceKind = "alternate"
	seqKeyboard sequenceKind = "keyboard"
)

type call struct {
	kind sequenceKind
	text string
	at   time.Time
}

// fakeDriver classifies each action sequence and asks handle for the result.
type fakeDriver struct {
	mu     sync.Mutex
	site   Site
	calls  []call
	handle func(kind sequenceKind, text string, n int) error
}

func (d *fakeDriver) classify(actions []ports.Action) (sequenceKind, string) {
	var text string
	for _, action := range actions {
		if action.Kind == ports.ActionFill && action.Selector != d.site.UsernameInput && action.Selector != d.site.PasswordInput {
			text = action.Value
		}
	}
	first := actions[0]
	switch {
	case first.Kind == ports.ActionNavigate && first.Value == d.site.LoginURL:
		return seqLogin, ""
	case first.Kind == ports.ActionNavigate:
		return seqCompose, ""
	case strings.Contains(first.Selector, d.site.InlineComposer) && strings.Contains(first.Selector, ","):
		return seqKeyboard, text
	case first.Selector == d.site.InlineComposer:
		return seqInline, text
	default:
		return seqAlt, text
	}
}

func (d *fakeDriver) Perform(_ context.Context, actions []ports.Action) (ports.ActionResult, error) {
	kind, text := d.classify(actions)
	d.mu.Lock()
	d.calls = append(d.calls, call{kind: kind, text: text, at: time.Now()})
	n := 0
	for _, c := range d.calls {
		if c.kind == kind {
			n++
		}
	}
	d.mu.Unlock()

	if d.handle == nil {
		return ports.ActionResult{}, nil
	}
	return ports.ActionResult{}, d.handle(kind, text, n)
}

func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) count(kind sequenceKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidates(texts ...string) []domain.CandidatePost {
	out := make([]domain.CandidatePost, 0, len(texts))
	for i, text := range texts {
		out = append(out, domain.CandidatePost{
			ArticleURL:   fmt.Sprintf("https://news.example.com/%d", i),
			Body:         text,
			BodyWithTags: text,
		})
	}
	return out
}

func newTestAgent(t *testing.T, cfg Config, driver *fakeDriver) (*Agent, *[]State) {
	t.Helper()

	var (
		mu      sync.Mutex
		visited []State
	)
	cfg.Credentials = Credentials{Username: "newsbot", Password: "secret"}
	cfg.AuthBackoff = time.Millisecond
	cfg.OnTransition = func(from, to State) {
		assert.True(t, CanTransition(from, to), "transition %s -> %s", from, to)
		mu.Lock()
		visited = append(visited, to)
		mu.Unlock()
	}
	driver.site = DefaultSite()

	agent, err := NewAgent(cfg, driver, quietLogger())
	require.NoError(t, err)
	return agent, &visited
}

func TestFallbackStrategyAndItemFailureIsLocal(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{handle: func(kind sequenceKind, text string, _ int) error {
		switch {
		case kind == seqInline:
			return fmt.Errorf("%w: button not found", domain.ErrAutomation)
		case strings.Contains(text, "doomed") && (kind == seqAlt || kind == seqKeyboard):
			return fmt.Errorf("%w: composer missing", domain.ErrAutomation)
		}
		return nil
	}}
	agent, _ := newTestAgent(t, Config{}, driver)

	run := agent.Run(context.Background(), candidates("doomed post", "second post"))

	require.Len(t, run.Outcomes, 2)
	assert.Equal(t, domain.PostFailed, run.Outcomes[0].Status)
	assert.Contains(t, run.Outcomes[0].LastError, "all strategies failed")
	assert.Equal(t, 9, run.Outcomes[0].AttemptCount)

	assert.Equal(t, domain.PostPosted, run.Outcomes[1].Status)
	assert.Equal(t, string(StrategyAlternate), run.Outcomes[1].Strategy)
	assert.Equal(t, 5, run.Outcomes[1].AttemptCount)

	assert.Equal(t, domain.ResultPartial, run.Result())
	assert.Equal(t, string(StateReady), run.FinalState)
}

// firstSubmissions returns when each item's first strategy sequence started.
func (d *fakeDriver) firstSubmissions() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	var (
		out  []time.Time
		seen = map[string]bool{}
	)
	for _, c := range d.calls {
		if c.kind == seqLogin || c.kind == seqCompose || seen[c.text] {
			continue
		}
		seen[c.text] = true
		out = append(out, c.at)
	}
	return out
}

func TestPacingIntervalIsObserved(t *testing.T) {
	t.Parallel()

	const interval = 40 * time.Millisecond
	driver := &fakeDriver{handle: func(kind sequenceKind, text string, _ int) error {
		if text == "fails" {
			return errors.New("boom")
		}
		return nil
	}}
	agent, _ := newTestAgent(t, Config{PacingInterval: interval}, driver)

	run := agent.Run(context.Background(), candidates("one", "fails", "three"))
	require.Len(t, run.Outcomes, 3)

	submissions := driver.firstSubmissions()
	require.Len(t, submissions, 3)
	assert.GreaterOrEqual(t, submissions[1].Sub(submissions[0]), interval-2*time.Millisecond)
	assert.GreaterOrEqual(t, submissions[2].Sub(submissions[1]), interval-2*time.Millisecond, "wait holds after a failed item")
	assert.GreaterOrEqual(t, submissions[2].Sub(submissions[0]), 2*interval-2*time.Millisecond)
}

func TestPacingCountsFromSubmissionNotCompose(t *testing.T) {
	t.Parallel()

	const interval = 150 * time.Millisecond
	driver := &fakeDriver{handle: func(kind sequenceKind, _ string, n int) error {
		if kind == seqCompose && n == 1 {
			time.Sleep(100 * time.Millisecond)
		}
		return nil
	}}
	agent, _ := newTestAgent(t, Config{PacingInterval: interval}, driver)

	run := agent.Run(context.Background(), candidates("slow compose", "fast compose"))
	require.Len(t, run.Outcomes, 2)

	submissions := driver.firstSubmissions()
	require.Len(t, submissions, 2)
	assert.GreaterOrEqual(t, submissions[1].Sub(submissions[0]), interval-2*time.Millisecond)
}

func TestCancellationWhilePacingRecordsNothing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver := &fakeDriver{handle: func(kind sequenceKind, _ string, n int) error {
		if kind == seqCompose && n == 2 {
			cancel()
		}
		return nil
	}}
	agent, _ := newTestAgent(t, Config{PacingInterval: time.Hour}, driver)

	run := agent.Run(ctx, candidates("one", "two"))

	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, domain.PostPosted, run.Outcomes[0].Status)
	assert.Equal(t, 1, driver.count(seqInline))
	assert.Equal(t, string(StateReady), run.FinalState)
}

func TestSessionExpiryResumesPendingItem(t *testing.T) {
	t.Parallel()

	expired := false
	driver := &fakeDriver{handle: func(kind sequenceKind, text string, _ int) error {
		if kind == seqInline && text == "two" && !expired {
			expired = true
			return fmt.Errorf("redirected to login: %w", domain.ErrSessionExpired)
		}
		return nil
	}}
	agent, visited := newTestAgent(t, Config{}, driver)

	run := agent.Run(context.Background(), candidates("one", "two", "three"))

	require.Len(t, run.Outcomes, 3)
	for _, result := range run.Outcomes {
		assert.Equal(t, domain.PostPosted, result.Status)
	}
	assert.Equal(t, 2, driver.count(seqLogin))
	assert.Equal(t, 4, driver.count(seqInline))

	submittedOne := 0
	for _, c := range driver.calls {
		if c.kind == seqInline && c.text == "one" {
			submittedOne++
		}
	}
	assert.Equal(t, 1, submittedOne, "confirmed items are not reprocessed")
	assert.Contains(t, *visited, StateSessionExpired)
	assert.Equal(t, domain.ResultSuccess, run.Result())
}

func TestAuthenticationFailureIsFatal(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{handle: func(kind sequenceKind, _ string, _ int) error {
		if kind == seqLogin {
			return errors.New("password field never appeared")
		}
		return nil
	}}
	agent, _ := newTestAgent(t, Config{AuthAttempts: 3}, driver)

	run := agent.Run(context.Background(), candidates("one", "two"))

	assert.Empty(t, run.Outcomes)
	assert.Equal(t, 3, driver.count(seqLogin))
	assert.Equal(t, 0, driver.count(seqCompose))
	assert.Contains(t, run.Fatal, domain.ErrAuth.Error())
	assert.Equal(t, domain.ResultFailure, run.Result())
	assert.Equal(t, string(StateUnauthenticated), run.FinalState)
}

func TestMissingCredentialsAreFatal(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{site: DefaultSite()}
	agent, err := NewAgent(Config{}, driver, quietLogger())
	require.NoError(t, err)

	run := agent.Run(context.Background(), candidates("one"))
	assert.Equal(t, domain.ResultFailure, run.Result())
	assert.Equal(t, 0, driver.count(seqLogin))
}

func TestPostCapEndsRunInReadyState(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	agent, _ := newTestAgent(t, Config{MaxPosts: 2}, driver)

	run := agent.Run(context.Background(), candidates("one", "two", "three", "four"))

	assert.Len(t, run.Outcomes, 2)
	assert.Equal(t, domain.ResultSuccess, run.Result())
	assert.Empty(t, run.Fatal)
	assert.Equal(t, string(StateReady), run.FinalState)
	assert.Equal(t, StateReady, agent.State())
}

func TestCancellationIsHonouredBetweenItems(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver := &fakeDriver{handle: func(kind sequenceKind, _ string, _ int) error {
		if kind == seqInline {
			cancel()
		}
		return nil
	}}
	agent, _ := newTestAgent(t, Config{}, driver)

	run := agent.Run(ctx, candidates("one", "two", "three"))

	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, domain.PostPosted, run.Outcomes[0].Status)
	assert.Equal(t, string(StateReady), run.FinalState)
}

func TestOverlongAndEmptyPostsAreSkipped(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	agent, _ := newTestAgent(t, Config{PlatformLimit: 10}, driver)

	run := agent.Run(context.Background(), candidates("", "far too long for ten", "short"))

	require.Len(t, run.Outcomes, 3)
	assert.Equal(t, domain.PostSkipped, run.Outcomes[0].Status)
	assert.Equal(t, domain.PostSkipped, run.Outcomes[1].Status)
	assert.Equal(t, domain.PostPosted, run.Outcomes[2].Status)
	assert.Equal(t, 1, driver.count(seqInline))
}

func TestNothingToPostSkipsLogin(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	agent, _ := newTestAgent(t, Config{}, driver)

	run := agent.Run(context.Background(), nil)
	assert.Equal(t, domain.ResultEmpty, run.Result())
	assert.Equal(t, 0, driver.count(seqLogin))
}

func TestParseStrategies(t *testing.T) {
	t.Parallel()

	kinds, err := ParseStrategies([]string{"Keyboard", "inline", "keyboard"})
	require.NoError(t, err)
	assert.Equal(t, []StrategyKind{StrategyKeyboard, StrategyInline}, kinds)

	kinds, err = ParseStrategies(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultStrategies, kinds)

	_, err = ParseStrategies([]string{"telepathy"})
	assert.Error(t, err)
}
