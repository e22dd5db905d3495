package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins that issued tokens."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Rejected login attempts."},
	{ID: authcore.MetricMFARequired, Name: "authcore_mfa_required_total", Help: "Logins answered with a second-factor challenge."},
	{ID: authcore.MetricMFAResent, Name: "authcore_mfa_resent_total", Help: "Pending MFA codes sent again."},
	{ID: authcore.MetricMFASuccess, Name: "authcore_mfa_success_total", Help: "Successful MFA code verifications."},
	{ID: authcore.MetricMFAFailure, Name: "authcore_mfa_failure_total", Help: "Rejected MFA code verifications."},
	{ID: authcore.MetricMFAExpired, Name: "authcore_mfa_expired_total", Help: "MFA codes submitted after expiry."},
	{ID: authcore.MetricMFALockout, Name: "authcore_mfa_lockout_total", Help: "Principals blocked after too many invalid MFA codes."},
	{ID: authcore.MetricAccountUnblocked, Name: "authcore_account_unblocked_total", Help: "Blocks cleared at login after the lockout elapsed."},
	{ID: authcore.MetricPasswordUpgraded, Name: "authcore_password_upgraded_total", Help: "Password hashes upgraded at login."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Access tokens issued from a refresh token."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authcore.MetricRefreshRevoked, Name: "authcore_refresh_revoked_total", Help: "Refresh attempts with a revoked token."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logouts that revoked a refresh token."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetConfirmSuccess, Name: "authcore_password_reset_confirm_success_total", Help: "Successful password resets."},
	{ID: authcore.MetricPasswordResetConfirmFailure, Name: "authcore_password_reset_confirm_failure_total", Help: "Rejected password resets."},
	{ID: authcore.MetricPasswordResetTokenReused, Name: "authcore_password_reset_token_reused_total", Help: "Password resets with an already used link."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Tokens revoked."},
	{ID: authcore.MetricRevocationCacheWriteFailure, Name: "authcore_revocation_cache_write_failure_total", Help: "Revocations whose cache write failed."},
	{ID: authcore.MetricBearerVerifySuccess, Name: "authcore_bearer_verify_success_total", Help: "Accepted bearer tokens."},
	{ID: authcore.MetricBearerVerifyFailure, Name: "authcore_bearer_verify_failure_total", Help: "Rejected bearer tokens."},
	{ID: authcore.MetricPermissionDenied, Name: "authcore_permission_denied_total", Help: "Denied authorization checks."},
	{ID: authcore.MetricAccountCreated, Name: "authcore_account_created_total", Help: "Created principals."},
	{ID: authcore.MetricAccountDuplicate, Name: "authcore_account_duplicate_total", Help: "Principal creations rejected as duplicate."},
	{ID: authcore.MetricNotificationDropped, Name: "authcore_notification_not_queued_total", Help: "Emails the engine could not queue."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_bearer_verify_latency_seconds", Help: "Bearer token verification latency."},
}

// NotificationDroppedName is the counter fed by Engine.NotificationsDropped.
const NotificationDroppedName = "authcore_notification_dropped_total"

// NotificationDroppedHelp describes NotificationDroppedName.
const NotificationDroppedHelp = "Emails dropped because the delivery queue was full."

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
