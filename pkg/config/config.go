package config

import "strings"

// Bounds on caller-supplied record fields. Anything longer is rejected
// before the store is touched.
const (
	MaxAgentNameLength   = 32
	MaxCapabilities      = 10
	MaxCapabilityLength  = 32
	MaxDescriptionLength = 256
	MaxResultURILength   = 256
)

// BaseReputation is the score every agent starts with at registration.
const BaseReputation = 100

func KebabToSnakeCase(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}
