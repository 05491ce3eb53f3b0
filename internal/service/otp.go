package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

const (
	otpDigits        = 6
	challengeTokenSz = 32
)

var otpSpace = big.NewInt(1000000)

// generateOTP devuelve un codigo uniforme de 6 digitos y su hash salado.
func generateOTP() (string, string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", "", err
	}
	code := fmt.Sprintf("%06d", n.Int64())
	hash, err := hashOTP(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}

func hashOTP(code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	return saltStr + ":" + digestOTP(saltStr, code), nil
}

func verifyOTP(code, stored string) bool {
	parts := strings.Split(stored, ":")
	if len(parts) != 2 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digestOTP(parts[0], code)), []byte(parts[1])) == 1
}

func digestOTP(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// newChallengeToken genera 256 bits aleatorios codificados para URL.
func newChallengeToken() (string, error) {
	buf := make([]byte, challengeTokenSz)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func isValidOTPCode(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
