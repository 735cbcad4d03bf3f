package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// CandidatePost is a generated post waiting to be published.
type CandidatePost struct {
	ArticleURL  string      `json:"article_url"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Body        string      `json:"body"`
	Tags        []string    `json:"tags"`
	// BodyWithTags is derived from Body and Tags; see Render.
	BodyWithTags string `json:"body_with_tags"`
}

// Render joins the body and tags the way the post is published.
func (p CandidatePost) Render() string {
	return RenderPost(p.Body, p.Tags)
}

// RenderedLength counts characters, not bytes, of the rendered post.
func (p CandidatePost) RenderedLength() int {
	return utf8.RuneCountInString(p.Render())
}

// RenderPost concatenates a body and its tags separated by single spaces.
func RenderPost(body string, tags []string) string {
	body = strings.TrimSpace(body)
	if len(tags) == 0 {
		return body
	}
	joined := strings.Join(tags, " ")
	if body == "" {
		return joined
	}
	return body + " " + joined
}

// PostStatus tracks a candidate through the posting agent.
type PostStatus string

const (
	PostPending PostStatus = "pending"
	PostPosted  PostStatus = "posted"
	PostSkipped PostStatus = "skipped"
	PostFailed  PostStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s PostStatus) Terminal() bool {
	return s != PostPending && s != ""
}

// PostOutcome records what happened to a single candidate.
type PostOutcome struct {
	Candidate    CandidatePost `json:"candidate"`
	Status       PostStatus    `json:"status"`
	AttemptCount int           `json:"attempt_count"`
	LastError    string        `json:"last_error,omitempty"`
	Strategy     string        `json:"strategy,omitempty"`
	FinishedAt   time.Time     `json:"finished_at"`
}
