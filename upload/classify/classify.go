package classify

import (
	"errors"
	"strings"
)

// Category buckets upload failures by root cause. Failures arrive as
// human-readable strings rather than machine codes, so bucketing is
// substring based.
type Category string

const (
	CategorySize       Category = "size"
	CategoryFormat     Category = "format"
	CategoryNetwork    Category = "network"
	CategoryPermission Category = "permission"
	CategoryQuota      Category = "quota"
	CategoryTimeout    Category = "timeout"
	CategoryMemory     Category = "memory"
	CategoryCorruption Category = "corruption"
	CategoryUnknown    Category = "unknown"
)

// Classification is the actionable summary of a failure: what bucket it falls
// into, whether another attempt can help, and what the user can do about it.
type Classification struct {
	Category    Category
	Message     string
	CanRetry    bool
	Suggestions []string
}

type matcher struct {
	category Category
	patterns []string
}

// Ordered by specificity. Size markers ("413", "too large") and auth markers
// must win over the catch-all network bucket, and "timed out" must win over
// "connection" for messages like "connection timed out".
var matchers = []matcher{
	{CategorySize, []string{
		"too large", "413", "request entity", "exceeds", "size limit", "file size",
	}},
	{CategoryPermission, []string{
		"unauthorized", "401", "403", "forbidden", "permission denied",
		"not authorized", "invalid credential", "expired token", "authentication failed",
	}},
	{CategoryQuota, []string{
		"quota", "507", "insufficient storage", "storage full", "no space left", "disk full",
	}},
	{CategoryTimeout, []string{
		"timeout", "timed out", "deadline exceeded", "408",
	}},
	{CategoryMemory, []string{
		"out of memory", "memory limit", "oom", "cannot allocate",
	}},
	{CategoryCorruption, []string{
		"corrupt", "checksum", "integrity", "malformed", "unexpected end of",
	}},
	{CategoryFormat, []string{
		"format", "unsupported", "invalid image", "not an image", "mime", "file type",
	}},
	{CategoryNetwork, []string{
		"network", "connection", "socket", "dns", "unreachable", "reset by peer",
		"broken pipe", "refused", "no such host", "failed to fetch",
		"502", "503", "504", "bad gateway", "service unavailable",
	}},
}

var suggestions = map[Category][]string{
	CategorySize: {
		"Compress the file before uploading",
		"Resize large images to reduce their file size",
		"Split the content into smaller files",
	},
	CategoryFormat: {
		"Convert the file to a supported format such as JPEG, PNG or WebP",
		"Check that the file extension matches the actual content",
	},
	CategoryNetwork: {
		"Check your internet connection",
		"Try again in a few moments",
		"Switch to a more stable network if the problem persists",
	},
	CategoryPermission: {
		"Sign in again to refresh your session",
		"Check that your account is allowed to upload media",
	},
	CategoryQuota: {
		"Free up storage space before uploading more media",
		"Contact an administrator to raise the storage quota",
	},
	CategoryTimeout: {
		"Try again on a faster connection",
		"Upload smaller files to shorten the transfer",
	},
	CategoryMemory: {
		"Upload a smaller file",
		"Try again once the service is under less load",
	},
	CategoryCorruption: {
		"Re-export the file and try again",
		"Verify the file opens correctly before uploading",
	},
	CategoryUnknown: {
		"Try again",
		"Contact support if the problem persists",
	},
}

// Classify maps a raw failure message to its category, retry eligibility and
// ranked remediation steps. Matching is case-insensitive and first match wins.
// Only permission failures are unretryable: retrying with the same rejected
// credential cannot succeed, while every other bucket can be transient.
func Classify(message string) Classification {
	lowered := strings.ToLower(message)
	for _, m := range matchers {
		for _, pattern := range m.patterns {
			if strings.Contains(lowered, pattern) {
				return Classification{
					Category:    m.category,
					Message:     message,
					CanRetry:    m.category != CategoryPermission,
					Suggestions: suggestions[m.category],
				}
			}
		}
	}

	return Classification{
		Category:    CategoryUnknown,
		Message:     message,
		CanRetry:    true,
		Suggestions: suggestions[CategoryUnknown],
	}
}

// ClassifiedError attaches a Classification to the error that produced it.
type ClassifiedError struct {
	Classification
	Err error
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Wrap classifies err and returns it as a *ClassifiedError. An error that
// already carries a classification passes through unchanged so the category
// assigned closest to the failure sticks.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return err
	}

	return &ClassifiedError{
		Classification: Classify(err.Error()),
		Err:            err,
	}
}

// From extracts the classification carried anywhere in err's chain. The second
// return is false when err was never classified.
func From(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}
