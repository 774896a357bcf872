package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
)

// The legacy envelope predates the authenticated format. Its Data field holds
// an OpenSSL-style passphrase ciphertext: base64 of "Salted__" + 8-byte salt +
// AES-256-CBC ciphertext, with the key and IV derived from the raw secret via
// EVP_BytesToKey over MD5. There is no integrity protection. This path exists
// only so data sealed before the format change stays readable.

var saltedPrefix = []byte("Salted__")

const legacySaltSize = 8

func (s *Sealer) openLegacy(doc *document, v any) error {
	raw, err := base64.StdEncoding.DecodeString(doc.Data)
	if err != nil {
		return ErrCorrupted
	}
	if len(raw) < len(saltedPrefix)+legacySaltSize || !bytes.HasPrefix(raw, saltedPrefix) {
		return ErrCorrupted
	}

	salt := raw[len(saltedPrefix) : len(saltedPrefix)+legacySaltSize]
	ciphertext := raw[len(saltedPrefix)+legacySaltSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return ErrCorrupted
	}

	key, iv := evpBytesToKey([]byte(s.secret), salt, keySize, ivSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, ok := pkcs7Unpad(plaintext)
	if !ok {
		return ErrCorrupted
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return ErrCorrupted
	}
	return nil
}

// evpBytesToKey reproduces OpenSSL's EVP_BytesToKey with MD5 and one round
// per block, the derivation the legacy writer used.
func evpBytesToKey(pass, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var derived, prev []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(pass)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func pkcs7Unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
