package tokens

// Token is one authorization token. Timestamps are milliseconds since
// epoch; UsedAt is zero while the token is unused. The JSON shape matches
// the remote document format so local and remote state stay comparable.
type Token struct {
	Token       string `json:"token"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	UsedAt      int64  `json:"usedAt,omitempty"`
	ResultID    string `json:"resultId,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"createdBy,omitempty"`
	AllowReuse  bool   `json:"allowReuse,omitempty"`
}

// Used reports whether the token has been consumed.
func (t Token) Used() bool { return t.UsedAt != 0 }

// Expired reports whether the token is past its expiry at the given time.
func (t Token) Expired(nowMillis int64) bool { return nowMillis >= t.ExpiresAt }

// Status classifies a token during validation.
type Status string

const (
	StatusValid    Status = "valid"
	StatusNotFound Status = "not_found"
	StatusExpired  Status = "expired"
	StatusUsed     Status = "already_used"
)

// Result is the outcome of Authority.Validate. Token is set for every
// status except StatusNotFound.
type Result struct {
	Status Status
	Token  *Token
}

// OK reports whether the token may be consumed.
func (r Result) OK() bool { return r.Status == StatusValid }

// Stats summarizes the merged token population.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Used    int `json:"used"`
	Expired int `json:"expired"`
}
