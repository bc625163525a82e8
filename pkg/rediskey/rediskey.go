package rediskey

import "fmt"

// Key prefixes (global convention across services)
const (
	SequencePrefix         = "seq"
	RateLimitPrefix        = "ratelimit"
	SubmissionCreatePrefix = "submission:create"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildDailySequenceKey returns "seq:{prefix}:{scope}:{day}"
func BuildDailySequenceKey(prefix, scope, day string) string {
	return fmt.Sprintf("%s:%s:%s:%s", SequencePrefix, prefix, scope, day)
}

// BuildRateLimitKey returns "ratelimit:{key}"
func BuildRateLimitKey(key string) string {
	return NamespaceKey(RateLimitPrefix, key)
}

// BuildSubmissionCreateKey returns "submission:create:{operatorID}"
func BuildSubmissionCreateKey(operatorID string) string {
	return NamespaceKey(SubmissionCreatePrefix, operatorID)
}
