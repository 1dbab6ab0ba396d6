package gwerrors

// Code is a stable GTW-xxx error identifier. Codes are grouped into numeric
// bands; the band determines the category and the default HTTP status, with a
// small set of named overrides (timeouts, rate limits, not-found, unavailable).
type Code string

// Authentication & authorization (GTW-001 to GTW-099).
const (
	CodeAuthenticationFailed Code = "GTW-001"
	CodeInvalidToken         Code = "GTW-002"
	CodeInvalidGoogleToken   Code = "GTW-003"
	CodeInvalidAppleToken    Code = "GTW-004"
	CodeTokenExpired         Code = "GTW-005"
	CodeInvalidRefreshToken  Code = "GTW-006"
	CodeUnauthorizedAccess   Code = "GTW-007"
	CodeSessionExpired       Code = "GTW-009"
	CodeNonceInvalid         Code = "GTW-012"
	CodeInvalidAudience      Code = "GTW-013"
	CodeInvalidIssuer        Code = "GTW-014"
	CodeRefreshTokenRevoked  Code = "GTW-016"
	CodeMissingKeyID         Code = "GTW-017"
	CodeKeyNotFound          Code = "GTW-018"
	CodeInvalidTokenType     Code = "GTW-019"
)

// Validation & request errors (GTW-100 to GTW-199).
const (
	CodeInvalidRequest       Code = "GTW-100"
	CodeMissingRequiredField Code = "GTW-101"
	CodeInvalidRequestBody   Code = "GTW-102"
	CodeInvalidParameter     Code = "GTW-103"
	CodeMalformedJSON        Code = "GTW-106"
	CodeMissingHeader        Code = "GTW-110"
	CodeUnknownProvider      Code = "GTW-117"
)

// Downstream service errors (GTW-200 to GTW-299).
const (
	CodeDownstreamError       Code = "GTW-200"
	CodeGoogleServiceError    Code = "GTW-202"
	CodeAppleServiceError     Code = "GTW-203"
	CodeDownstreamTimeout     Code = "GTW-204"
	CodeDownstreamConnection  Code = "GTW-205"
	CodeExternalRateLimit     Code = "GTW-207"
	CodeDownstreamUnavailable Code = "GTW-208"
	CodeCircuitBreakerOpen    Code = "GTW-209"
	CodeDownstreamBadResponse Code = "GTW-210"
	CodeSessionStoreError     Code = "GTW-215"
	CodeAuditPublishError     Code = "GTW-216"
	CodeKeyDiscoveryError     Code = "GTW-217"
)

// Rate limiting & security errors (GTW-300 to GTW-399).
const (
	CodeRateLimitExceeded  Code = "GTW-300"
	CodeTooManyRequests    Code = "GTW-301"
	CodeSuspiciousActivity Code = "GTW-302"
	CodeSecurityViolation  Code = "GTW-307"
)

// User management errors (GTW-400 to GTW-499).
const (
	CodeUserNotFound       Code = "GTW-400"
	CodeUserAlreadyExists  Code = "GTW-401"
	CodeAccountDeactivated Code = "GTW-407"
	CodeUpdateConflict     Code = "GTW-410"
	CodeSessionNotFound    Code = "GTW-411"
)

// System & infrastructure errors (GTW-500 to GTW-599).
const (
	CodeInternal           Code = "GTW-500"
	CodeDatabaseError      Code = "GTW-501"
	CodeConfigurationError Code = "GTW-502"
	CodeServiceUnavailable Code = "GTW-503"
	CodeTimeout            Code = "GTW-504"
	CodeMaintenanceMode    Code = "GTW-506"
	CodeSystemOverloaded   Code = "GTW-509"
)

// Category classifies a code by its numeric band.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryDownstream Category = "downstream"
	CategorySecurity   Category = "security"
	CategoryUser       Category = "user"
	CategorySystem     Category = "system"
)

// defaultMessages is the fixed registry of known codes. Raised errors fall
// back to these when no override message is supplied.
var defaultMessages = map[Code]string{
	CodeAuthenticationFailed: "Authentication failed",
	CodeInvalidToken:         "Invalid or expired token",
	CodeInvalidGoogleToken:   "Invalid Google ID token",
	CodeInvalidAppleToken:    "Invalid Apple ID token",
	CodeTokenExpired:         "Token has expired",
	CodeInvalidRefreshToken:  "Invalid or expired refresh token",
	CodeUnauthorizedAccess:   "Unauthorized access to resource",
	CodeSessionExpired:       "User session has expired",
	CodeNonceInvalid:         "Nonce missing or invalid",
	CodeInvalidAudience:      "Token audience is not allowed",
	CodeInvalidIssuer:        "Token issuer is not allowed",
	CodeRefreshTokenRevoked:  "Refresh token has been revoked",
	CodeMissingKeyID:         "Missing key ID in token header",
	CodeKeyNotFound:          "Signing key not found",
	CodeInvalidTokenType:     "Invalid token type",

	CodeInvalidRequest:       "Invalid request format",
	CodeMissingRequiredField: "Required field is missing",
	CodeInvalidRequestBody:   "Request body is invalid or malformed",
	CodeInvalidParameter:     "Invalid parameter value",
	CodeMalformedJSON:        "Malformed JSON in request body",
	CodeMissingHeader:        "Required header is missing",
	CodeUnknownProvider:      "Unknown identity provider",

	CodeDownstreamError:       "Downstream service error",
	CodeGoogleServiceError:    "Google OAuth service unavailable",
	CodeAppleServiceError:     "Apple OAuth service unavailable",
	CodeDownstreamTimeout:     "Downstream service timeout",
	CodeDownstreamConnection:  "Unable to connect to downstream service",
	CodeExternalRateLimit:     "External API rate limit exceeded",
	CodeDownstreamUnavailable: "Service temporarily unavailable",
	CodeCircuitBreakerOpen:    "Circuit breaker is open for downstream service",
	CodeDownstreamBadResponse: "Downstream returned invalid response",
	CodeSessionStoreError:     "Session store unavailable",
	CodeAuditPublishError:     "Audit event delivery failed",
	CodeKeyDiscoveryError:     "Key discovery endpoint unavailable",

	CodeRateLimitExceeded:  "Rate limit exceeded",
	CodeTooManyRequests:    "Too many requests from this client",
	CodeSuspiciousActivity: "Suspicious activity detected",
	CodeSecurityViolation:  "Security policy violation",

	CodeUserNotFound:       "User not found",
	CodeUserAlreadyExists:  "User already exists",
	CodeAccountDeactivated: "User account has been deactivated",
	CodeUpdateConflict:     "Resource update conflict",
	CodeSessionNotFound:    "Session not found",

	CodeInternal:           "Internal server error",
	CodeDatabaseError:      "Database operation failed",
	CodeConfigurationError: "System configuration error",
	CodeServiceUnavailable: "Service temporarily unavailable",
	CodeTimeout:            "Request timeout",
	CodeMaintenanceMode:    "System is in maintenance mode",
	CodeSystemOverloaded:   "System is currently overloaded",
}

// Registered reports whether code belongs to the fixed registry.
func Registered(code Code) bool {
	_, ok := defaultMessages[code]
	return ok
}

// Codes returns every registered code. Primarily for exhaustiveness tests.
func Codes() []Code {
	out := make([]Code, 0, len(defaultMessages))
	for code := range defaultMessages {
		out = append(out, code)
	}
	return out
}

// DefaultMessage returns the registry message for code, or a generic fallback
// for unregistered codes so the function stays total.
func DefaultMessage(code Code) string {
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return defaultMessages[CodeInternal]
}

// CategoryOf derives the category from the code's numeric band. Codes are
// zero-padded so plain string comparison orders them numerically, the same
// trick the band boundaries rely on. Unrecognized codes fall into the system
// band so derivation is total.
func CategoryOf(code Code) Category {
	switch {
	case code < "GTW-100":
		return CategoryAuth
	case code < "GTW-200":
		return CategoryValidation
	case code < "GTW-300":
		return CategoryDownstream
	case code < "GTW-400":
		return CategorySecurity
	case code < "GTW-500":
		return CategoryUser
	default:
		return CategorySystem
	}
}

// HTTPStatus maps a code to its transport status. The mapping is a pure
// function of the band plus the named overrides and is total over all codes,
// registered or not.
func HTTPStatus(code Code) int {
	switch CategoryOf(code) {
	case CategoryAuth:
		return 401
	case CategoryValidation:
		return 400
	case CategoryDownstream:
		switch code {
		case CodeDownstreamTimeout:
			return 504
		case CodeCircuitBreakerOpen, CodeDownstreamUnavailable:
			return 503
		}
		return 502
	case CategorySecurity:
		if code == CodeRateLimitExceeded || code == CodeTooManyRequests {
			return 429
		}
		return 403
	case CategoryUser:
		if code == CodeUserNotFound || code == CodeSessionNotFound {
			return 404
		}
		return 409
	default:
		switch code {
		case CodeServiceUnavailable, CodeMaintenanceMode, CodeSystemOverloaded:
			return 503
		case CodeTimeout:
			return 504
		}
		return 500
	}
}
