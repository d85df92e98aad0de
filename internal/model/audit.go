package model

// AuditActor identifies who triggered an auth event and from where.
type AuditActor struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"ua,omitempty"`
}

// AuditEntry is one line of the append-only auth audit trail. The trail is a
// hard requirement of the token exchange protocol: it is the only record of
// who minted or revoked standing credentials.
type AuditEntry struct {
	Event      string     `json:"event"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Reason     string     `json:"reason,omitempty"`
	Scopes     []string   `json:"scopes,omitempty"`
	JTI        string     `json:"jti,omitempty"`
	ExpiresAt  int64      `json:"expires_at,omitempty"`
}

type AuditQuery struct {
	Event   string
	ActorID string
	From    string
	To      string
	Page    int
	Limit   int
}
