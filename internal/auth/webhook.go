package auth

// SourceHeader is the request header carrying the trusted-source marker
// set by the upstream webhook trigger.
const SourceHeader = "x-supabase-webhook-source"

// VerifySource reports whether the inbound call carries a trusted-source
// marker matching the configured secret. Both values must be present and
// exactly equal; absence of either is an authentication failure, not an
// error.
func VerifySource(headerValue, expectedSecret string) bool {
	return headerValue != "" && expectedSecret != "" && headerValue == expectedSecret
}
