package posting

import (
	"fmt"
	"strings"
	"time"

	"NewsPoster/internal/ports"
)

// StrategyKind names a submission procedure. Strategies are tried in the
// configured order until one succeeds.
type StrategyKind string

const (
	// StrategyInline types into the timeline composer and clicks its post button.
	StrategyInline StrategyKind = "inline"
	// StrategyAlternate locates the composer through placeholder and editor selectors.
	StrategyAlternate StrategyKind = "alternate"
	// StrategyKeyboard submits with the Control+Enter shortcut.
	StrategyKeyboard StrategyKind = "keyboard"
)

// DefaultStrategies is the fallback order used when none is configured.
var DefaultStrategies = []StrategyKind{StrategyInline, StrategyAlternate, StrategyKeyboard}

// ParseStrategies validates configured strategy names, keeping their order.
func ParseStrategies(names []string) ([]StrategyKind, error) {
	if len(names) == 0 {
		return append([]StrategyKind(nil), DefaultStrategies...), nil
	}
	kinds := make([]StrategyKind, 0, len(names))
	seen := map[StrategyKind]bool{}
	for _, name := range names {
		kind := StrategyKind(strings.ToLower(strings.TrimSpace(name)))
		switch kind {
		case StrategyInline, StrategyAlternate, StrategyKeyboard:
		default:
			return nil, fmt.Errorf("unknown posting strategy %q", name)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Site holds the URLs and selectors of the publishing platform.
type Site struct {
	LoginURL string
	HomeURL  string

	UsernameInput string
	NextButton    string
	PasswordInput string
	LoginButton   string
	// Timeline is visible once a session is established.
	Timeline string

	InlineComposer   string
	InlineButtons    []string
	AltComposers     []string
	AltButtons       []string
	KeyboardShortcut string
}

// DefaultSite targets the X web client.
func DefaultSite() Site {
	return Site{
		LoginURL:      "https://x.com/i/flow/login",
		HomeURL:       "https://x.com/home",
		UsernameInput: `input[autocomplete="username"]`,
		NextButton:    `xpath=//span[text()="Next"]`,
		PasswordInput: `input[name="password"]`,
		LoginButton:   `xpath=//span[text()="Log in"]`,
		Timeline:      `[data-testid="primaryColumn"]`,

		InlineComposer: `[data-testid="tweetTextarea_0"]`,
		InlineButtons: []string{
			`[data-testid="tweetButtonInline"]`,
			`[data-testid="tweetButton"]`,
			`[role="button"][data-testid="tweetButtonInline"]`,
			`[role="button"][data-testid="tweetButton"]`,
		},
		AltComposers: []string{
			`[placeholder="What is happening?!"]`,
			`[placeholder="What's happening?"]`,
			`[aria-label="Post text"]`,
			`.public-DraftEditor-content`,
			`[contenteditable="true"]`,
		},
		AltButtons: []string{
			`button[data-testid="tweetButtonInline"]`,
			`button[data-testid="tweetButton"]`,
			`xpath=//button[contains(., "Post")]`,
			`xpath=//*[@role="button" and contains(., "Post")]`,
		},
		KeyboardShortcut: "Control+Enter",
	}
}

// Timing groups the waits used inside action sequences.
type Timing struct {
	Element time.Duration
	Page    time.Duration
	// Settle pauses after typing and after submitting.
	Settle time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.Element <= 0 {
		t.Element = 5 * time.Second
	}
	if t.Page <= 0 {
		t.Page = 30 * time.Second
	}
	return t
}

func loginSequence(site Site, creds Credentials, timing Timing) []ports.Action {
	return []ports.Action{
		{Kind: ports.ActionNavigate, Value: site.LoginURL},
		{Kind: ports.ActionWaitVisible, Selector: site.UsernameInput, Timeout: timing.Page},
		{Kind: ports.ActionFill, Selector: site.UsernameInput, Value: creds.Username},
		{Kind: ports.ActionClick, Selector: site.NextButton},
		{Kind: ports.ActionWaitVisible, Selector: site.PasswordInput, Timeout: timing.Page},
		{Kind: ports.ActionFill, Selector: site.PasswordInput, Value: creds.Password},
		{Kind: ports.ActionClick, Selector: site.LoginButton},
		{Kind: ports.ActionWaitVisible, Selector: site.Timeline, Timeout: timing.Page},
	}
}

func composeSequence(site Site, timing Timing) []ports.Action {
	return []ports.Action{
		{Kind: ports.ActionNavigate, Value: site.HomeURL},
		{Kind: ports.ActionWaitVisible, Selector: site.Timeline, Timeout: timing.Page},
	}
}

// sequences expands a strategy into the action sequences it tries, in order.
// The strategy succeeds when any one of them completes.
func (k StrategyKind) sequences(site Site, text string, timing Timing) [][]ports.Action {
	typeInto := func(composer string) []ports.Action {
		return []ports.Action{
			{Kind: ports.ActionWaitVisible, Selector: composer, Timeout: timing.Element * 2},
			{Kind: ports.ActionClick, Selector: composer},
			{Kind: ports.ActionFill, Selector: composer, Value: text},
			{Kind: ports.ActionPause, Timeout: timing.Settle},
		}
	}
	clickButton := func(composer, button string) []ports.Action {
		return append(typeInto(composer),
			ports.Action{Kind: ports.ActionWaitVisible, Selector: button, Timeout: timing.Element},
			ports.Action{Kind: ports.ActionClick, Selector: button},
			ports.Action{Kind: ports.ActionPause, Timeout: timing.Settle},
		)
	}

	switch k {
	case StrategyInline:
		out := make([][]ports.Action, 0, len(site.InlineButtons))
		for _, button := range site.InlineButtons {
			out = append(out, clickButton(site.InlineComposer, button))
		}
		return out
	case StrategyAlternate:
		// A CSS selector list matches whichever composer is present.
		composer := strings.Join(site.AltComposers, ", ")
		out := make([][]ports.Action, 0, len(site.AltButtons))
		for _, button := range site.AltButtons {
			out = append(out, clickButton(composer, button))
		}
		return out
	case StrategyKeyboard:
		composer := strings.Join(append([]string{site.InlineComposer}, site.AltComposers...), ", ")
		return [][]ports.Action{append(typeInto(composer),
			ports.Action{Kind: ports.ActionShortcut, Value: site.KeyboardShortcut},
			ports.Action{Kind: ports.ActionPause, Timeout: timing.Settle},
		)}
	default:
		return nil
	}
}
