package envelope

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	return NewSealer(Config{Secret: "unit-test-secret"})
}

func TestSealOpenRoundTrip(t *testing.T) {
	s := testSealer(t)

	cases := []any{
		payload{Name: "alice", Count: 3, Tags: []string{"a", "b"}},
		map[string]any{"k": "v"},
		[]int{1, 2, 3},
		"plain string",
		42.5,
	}

	for _, in := range cases {
		sealed, err := s.Seal(in)
		require.NoError(t, err)

		var out any
		require.NoError(t, s.Open(sealed, &out))

		expected, _ := json.Marshal(in)
		actual, _ := json.Marshal(out)
		assert.JSONEq(t, string(expected), string(actual))
	}
}

func TestSealProducesFreshIVAndSalt(t *testing.T) {
	s := testSealer(t)

	first, err := s.Seal("same value")
	require.NoError(t, err)
	second, err := s.Seal("same value")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestOpenWrongSecretFailsIntegrity(t *testing.T) {
	sealed, err := testSealer(t).Seal(payload{Name: "bob"})
	require.NoError(t, err)

	other := NewSealer(Config{Secret: "different-secret"})
	var out payload
	assert.ErrorIs(t, other.Open(sealed, &out), ErrIntegrity)
}

// mutateField re-encodes the envelope with one byte of the named base64 field
// flipped.
func mutateField(t *testing.T, sealed, field string, offset int) string {
	t.Helper()

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	decoded, err := base64.StdEncoding.DecodeString(doc[field].(string))
	require.NoError(t, err)
	require.Less(t, offset, len(decoded))
	decoded[offset] ^= 0x01
	doc[field] = base64.StdEncoding.EncodeToString(decoded)

	reencoded, err := json.Marshal(doc)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(reencoded)
}

func TestTamperDetection(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal(payload{Name: "carol", Count: 9})
	require.NoError(t, err)

	for _, field := range []string{"data", "iv", "salt"} {
		tampered := mutateField(t, sealed, field, 0)
		var out payload
		err := s.Open(tampered, &out)
		assert.ErrorIs(t, err, ErrIntegrity, "flipping %s must fail integrity", field)
	}
}

func TestOpenMalformedInput(t *testing.T) {
	s := testSealer(t)
	var out payload

	assert.ErrorIs(t, s.Open("not base64 at all!!", &out), ErrMalformed)

	notJSON := base64.StdEncoding.EncodeToString([]byte("garbage"))
	assert.ErrorIs(t, s.Open(notJSON, &out), ErrMalformed)

	partial, _ := json.Marshal(map[string]any{"data": "x", "iv": "y", "timestamp": 1})
	assert.ErrorIs(t, s.Open(base64.StdEncoding.EncodeToString(partial), &out), ErrMalformed)
}

func TestIsValidStructuralOnly(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal("v")
	require.NoError(t, err)

	assert.True(t, IsValid(sealed))
	// Tampered envelopes are still structurally valid; IsValid does not do
	// cryptographic verification.
	assert.True(t, IsValid(mutateField(t, sealed, "data", 0)))
	assert.False(t, IsValid("@@@"))

	legacy, _ := json.Marshal(document{Data: "abcd", Timestamp: 5})
	assert.False(t, IsValid(base64.StdEncoding.EncodeToString(legacy)))
}

func TestTimestampOfWithoutSecret(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	s := NewSealer(Config{Secret: "k", Now: func() time.Time { return fixed }})

	sealed, err := s.Seal("v")
	require.NoError(t, err)

	ts, err := TimestampOf(sealed)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli(), ts)

	_, err = TimestampOf("###")
	assert.Error(t, err)
}

func TestOpenCorruptedAfterValidTagIsImpossibleWithoutKeyChange(t *testing.T) {
	// A ciphertext that authenticates but decrypts to non-JSON can only be
	// produced by a writer holding the MAC key; simulate one.
	s := testSealer(t)
	sealed, err := s.Seal("v")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	var doc document
	require.NoError(t, json.Unmarshal(raw, &doc))

	// Truncate the ciphertext so the plaintext becomes invalid JSON, then
	// re-sign with the genuine MAC key.
	ct, _ := base64.StdEncoding.DecodeString(doc.Data)
	require.NotEmpty(t, ct)
	doc.Data = base64.StdEncoding.EncodeToString(ct[:1])
	_, macKey := s.deriveKeys(doc.Salt)
	doc.AuthTag = computeTag(macKey, doc.IV, doc.Data)

	reencoded, _ := json.Marshal(doc)
	var out payload
	err = s.Open(base64.StdEncoding.EncodeToString(reencoded), &out)
	assert.ErrorIs(t, err, ErrCorrupted)
}
