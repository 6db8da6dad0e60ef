package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// KeyPrefix marks raw API keys so they are recognisable in configs and logs.
const KeyPrefix = "sk_"

const keyEntropyBytes = 32 // 256 bits

// PasswordCost is the bcrypt cost used for new password hashes.
var PasswordCost = bcrypt.DefaultCost

var (
	dummyOnce sync.Once
	dummyHash []byte
)

type TokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Password Hashing (Bcrypt)
//
// bcrypt reads at most 72 bytes, so the password is first reduced to a
// fixed-length SHA256 digest. Every byte of the password then counts.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(prehash(password), PasswordCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(password))
	return err == nil
}

// BurnPasswordCheck runs a bcrypt comparison that always fails, so a login
// for an unknown user costs the same as one with a wrong password.
func BurnPasswordCheck(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword(prehash("textgate-timing-equaliser"), PasswordCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, prehash(password))
}

// API Key Generation (Secure Random + SHA256 Hash)
// Returns: rawKey (to show user once), keyHash (to store), prefix (to store)
func GenerateAPIKey() (string, string, string, error) {
	bytes := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}

	rawKey := KeyPrefix + base64.RawURLEncoding.EncodeToString(bytes)
	prefix := rawKey[:7]

	return rawKey, HashAPIKey(rawKey), prefix, nil
}

// HashAPIKey returns the SHA256 hash of the raw key
func HashAPIKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// JWT Logic
type JWTManager struct {
	secretKey     string
	tokenDuration time.Duration
}

func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{secretKey, tokenDuration}
}

func (m *JWTManager) Generate(username, role string) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "textgate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

func (m *JWTManager) Verify(tokenStr string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
