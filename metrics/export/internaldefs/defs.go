package internaldefs

import (
	goShield "github.com/MrEthical07/goShield"
)

// CounterDef maps one engine counter to its exported name.
type CounterDef struct {
	ID   goShield.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported name.
type HistogramDef struct {
	ID   goShield.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goShield.MetricLoginSuccess, Name: "goshield_login_success_total", Help: "Successful password logins."},
	{ID: goShield.MetricLoginFailure, Name: "goshield_login_failure_total", Help: "Failed password logins."},
	{ID: goShield.MetricLoginThrottled, Name: "goshield_login_throttled_total", Help: "Password logins rejected by throttling."},
	{ID: goShield.MetricRememberSuccess, Name: "goshield_remember_success_total", Help: "Logins resumed from a remember-me token."},
	{ID: goShield.MetricRememberReuse, Name: "goshield_remember_reuse_total", Help: "Replayed remember-me tokens; each revokes the user's chain."},
	{ID: goShield.MetricTokenSuccess, Name: "goshield_token_success_total", Help: "Successful bearer token authentications."},
	{ID: goShield.MetricTokenFailure, Name: "goshield_token_failure_total", Help: "Failed bearer token authentications."},
	{ID: goShield.MetricTokenThrottled, Name: "goshield_token_throttled_total", Help: "Bearer token lookups rejected by origin throttling."},
	{ID: goShield.MetricLogout, Name: "goshield_logout_total", Help: "Logout operations."},
	{ID: goShield.MetricSessionCreated, Name: "goshield_session_created_total", Help: "Created sessions."},
	{ID: goShield.MetricSessionDestroyed, Name: "goshield_session_destroyed_total", Help: "Destroyed sessions."},
	{ID: goShield.MetricIdentityCreated, Name: "goshield_identity_created_total", Help: "Issued remember-me and access tokens."},
	{ID: goShield.MetricIdentityRevoked, Name: "goshield_identity_revoked_total", Help: "Revoked or expired remember-me and access tokens."},
	{ID: goShield.MetricUserCreated, Name: "goshield_user_created_total", Help: "Created users."},
	{ID: goShield.MetricUserDeleted, Name: "goshield_user_deleted_total", Help: "Deleted users."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goShield.MetricAttemptLatency, Name: "goshield_attempt_latency_seconds", Help: "Password login latency, hashing included."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goshield_audit_dropped_total"

// HistogramBounds are the upper bounds of the engine's latency buckets,
// in seconds.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSeconds is HistogramBounds without the +Inf bucket.
var HistogramBoundSeconds = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
