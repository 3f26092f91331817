package enrich

import (
	"errors"
	"regexp"
	"strings"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

var (
	// ErrOversizedInput means the prompt exceeded the model's context window.
	ErrOversizedInput = errors.New("enrich: input is too long for requested model")
	// ErrThrottled means the endpoint rate-limited the call.
	ErrThrottled = errors.New("enrich: too many tokens per minute")
	// ErrNoJSON means the reply held no parseable JSON object.
	ErrNoJSON = errors.New("enrich: no valid JSON found in model reply")
)

// ErrorKind is the retry class of a failed model call.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindOversized
	KindThrottled
)

func (k ErrorKind) String() string {
	switch k {
	case KindOversized:
		return "oversized"
	case KindThrottled:
		return "throttled"
	default:
		return "other"
	}
}

var status429RE = regexp.MustCompile(`\b429\b`)

// Classify maps an endpoint error onto a retry class. Typed sentinels and SDK
// exceptions are checked first, then the message text.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	switch {
	case errors.Is(err, ErrOversizedInput):
		return KindOversized
	case errors.Is(err, ErrThrottled):
		return KindThrottled
	}
	var throttle *brtypes.ThrottlingException
	if errors.As(err, &throttle) {
		return KindThrottled
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "Input is too long"):
		return KindOversized
	case strings.Contains(msg, "Too many tokens"),
		strings.Contains(msg, "ThrottlingException"),
		status429RE.MatchString(msg):
		return KindThrottled
	}
	return KindOther
}
