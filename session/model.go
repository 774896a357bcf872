package session

// Session is one authenticated admin session. Timestamps are milliseconds
// since epoch. CSRFNonce is minted at create time and never rotates for the
// session's lifetime.
type Session struct {
	Owner          string `json:"owner"`
	IssuedAt       int64  `json:"issuedAt"`
	LastActivityAt int64  `json:"lastActivityAt"`
	Fingerprint    string `json:"fingerprint"`
	CSRFNonce      string `json:"csrfNonce"`
}
