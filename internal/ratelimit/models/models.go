package models

import (
	"math"
	"time"
)

// EndpointClass groups routes that share one request budget.
type EndpointClass string

const (
	// ClassPublic covers unauthenticated routes (record verification), keyed by client IP.
	ClassPublic EndpointClass = "public"
	// ClassAuthenticated covers bearer-token routes, keyed by caller.
	ClassAuthenticated EndpointClass = "authenticated"
)

// Limit is a sliding-window budget. RequestsPerWindow <= 0 disables the limit.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

func (l Limit) Enabled() bool {
	return l.RequestsPerWindow > 0 && l.Window > 0
}

// Result is the outcome of one bucket check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, only set when not allowed
}

// Denied builds a rejection that can be retried at resetAt.
func Denied(limit int, now, resetAt time.Time) *Result {
	retry := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	return &Result{Limit: limit, ResetAt: resetAt, RetryAfter: retry}
}

// IPKey and UserKey name the bucket for a class. Keys never mix the two
// identifier kinds, so an IP can never collide with a user id.
func IPKey(ip string, class EndpointClass) string {
	return "ratelimit:ip:" + ip + ":" + string(class)
}

func UserKey(userID string, class EndpointClass) string {
	return "ratelimit:user:" + userID + ":" + string(class)
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
