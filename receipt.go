package quizgate

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const receiptIssuer = "quizgate"

type receiptClaims struct {
	TokenValue string `json:"tkn"`
	ResultID   string `json:"res"`
	jwt.RegisteredClaims
}

// receiptSigner issues and verifies HS256 result receipts binding a
// consumed token to the result it unlocked.
type receiptSigner struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func newReceiptSigner(secret []byte, lifetime time.Duration, now func() time.Time) *receiptSigner {
	if now == nil {
		now = time.Now
	}
	return &receiptSigner{secret: secret, lifetime: lifetime, now: now}
}

func (s *receiptSigner) Sign(token, resultID string, consumedAt int64) (Receipt, error) {
	issued := time.UnixMilli(consumedAt)
	claims := receiptClaims{
		TokenValue: token,
		ResultID:   resultID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    receiptIssuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Receipt{}, fmt.Errorf("sign receipt: %w", err)
	}
	return Receipt{
		Token:      token,
		ResultID:   resultID,
		ConsumedAt: consumedAt,
		Signed:     signed,
	}, nil
}

func (s *receiptSigner) Verify(signed string) (*Receipt, error) {
	var claims receiptClaims
	parsed, err := jwt.ParseWithClaims(signed, &claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(receiptIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrReceiptInvalid, err)
	}
	if claims.TokenValue == "" || claims.ResultID == "" || claims.IssuedAt == nil {
		return nil, ErrReceiptInvalid
	}

	return &Receipt{
		Token:      claims.TokenValue,
		ResultID:   claims.ResultID,
		ConsumedAt: claims.IssuedAt.Time.UnixMilli(),
		Signed:     signed,
	}, nil
}
