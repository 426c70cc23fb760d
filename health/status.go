// Package health reports the state of pods and of the agent running them.
// A status is healthy, degraded or unhealthy; an aggregate takes the worst
// of its parts.
package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/haje01/swak/plugin"
)

// Status levels.
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one pod or of a group of them.
type Status struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

func (s Status) IsDegraded() bool { return s.Status == Degraded }
func (s Status) IsUnhealthy() bool { return s.Status == Unhealthy }

// sanitizeErrorMessage hides URLs, paths, addresses and credentials so that
// errors can be shown on an unauthenticated endpoint.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	// URLs go first since they contain paths.
	sanitized := urlRegex.ReplaceAllString(err, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	for _, word := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, word) {
			sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
			break
		}
	}
	return sanitized
}

// FromPod derives the status of a pod from its lifecycle state and its
// last failure. A pod that failed is unhealthy. A running pod is healthy.
// A pod not yet started, or one whose source has ended, is degraded.
func FromPod(name string, state plugin.State, lastErr error) Status {
	if lastErr != nil {
		return NewUnhealthy(name, sanitizeErrorMessage(lastErr.Error()))
	}
	switch state {
	case plugin.StateStarted:
		return NewHealthy(name, "running")
	case plugin.StateCreated:
		return NewDegraded(name, "not started")
	default:
		return NewDegraded(name, "finished")
	}
}
