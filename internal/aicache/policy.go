package aicache

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

const (
	DefaultMinDescriptionLength  = 10
	DefaultMinCommentsForSummary = 5
	DefaultRateLimitPerMinute    = 10
	RateWindow                   = time.Minute
	DuplicateScanWindow          = 50
	DuplicateCandidateMax        = 30
)

// Policy holds the generation thresholds.
type Policy struct {
	MinDescriptionLength  int
	MinCommentsForSummary int
	RateLimitPerMinute    int
}

func DefaultPolicy() Policy {
	return Policy{
		MinDescriptionLength:  DefaultMinDescriptionLength,
		MinCommentsForSummary: DefaultMinCommentsForSummary,
		RateLimitPerMinute:    DefaultRateLimitPerMinute,
	}
}

// Input is what a precondition check needs to know about the issue.
type Input struct {
	Description  string
	CommentCount int
}

var ErrPrecondition = errors.New("ai precondition not met")

// PreconditionError names the unmet requirement.
type PreconditionError struct {
	Type    ArtifactType
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }
func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// Check reports whether a generation of type t may be requested. It never
// touches the network.
func (p Policy) Check(t ArtifactType, in Input) error {
	switch t {
	case Summary, Suggestion:
		// Strictly longer than the threshold.
		if utf8.RuneCountInString(in.Description) <= p.MinDescriptionLength {
			return &PreconditionError{
				Type:    t,
				Message: fmt.Sprintf("description must be longer than %d characters", p.MinDescriptionLength),
			}
		}
	case CommentSummary:
		if in.CommentCount < p.MinCommentsForSummary {
			return &PreconditionError{
				Type:    t,
				Message: fmt.Sprintf("at least %d comments are required", p.MinCommentsForSummary),
			}
		}
	default:
		return fmt.Errorf("unknown artifact type %q", t)
	}
	return nil
}

// CheckText applies the description rule to free-form generation such as
// label suggestion, which has no artifact type of its own.
func (p Policy) CheckText(description string) error {
	return p.Check(Summary, Input{Description: description})
}

var ErrRateLimited = errors.New("ai rate limit exceeded")

// RateLimitError carries the wait until the current window closes.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfterSeconds())
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds rounds up and stays within 1..60.
func (e *RateLimitError) RetryAfterSeconds() int {
	return RetryAfterSeconds(e.RetryAfter)
}

func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	if limit := int(RateWindow / time.Second); secs > limit {
		return limit
	}
	return secs
}
