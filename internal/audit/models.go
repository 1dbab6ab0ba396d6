// Package audit captures security-relevant auth events and publishes them to
// the event pipeline. Publishing is best effort: a broken pipeline must never
// fail a login.
package audit

import "time"

// Action names a security event.
type Action string

const (
	ActionAuthSucceeded   Action = "auth_succeeded"
	ActionAuthFailed      Action = "auth_failed"
	ActionTokenRefreshed  Action = "token_refreshed"
	ActionSessionCreated  Action = "session_created"
	ActionSessionEvicted  Action = "session_evicted"
	ActionSessionRevoked  Action = "session_revoked"
	ActionSessionsRevoked Action = "sessions_revoked"
)

// SecurityEvent is emitted from the auth flows for monitoring and forensics.
type SecurityEvent struct {
	Action    Action    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
