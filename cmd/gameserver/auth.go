package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// playerRecord is the persisted record a CreatePlayer/LoginPlayer pair
// operates on, stored via the server's PersistenceBackend under
// "player/<username>".
type playerRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// sessionClaims is the JWT payload issued on successful login, carrying
// just enough to recognize the player on later RemoteEngineEvent frames.
type sessionClaims struct {
	Username string `json:"username"`
	jwt.StandardClaims
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("gameserver: hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func issueSessionToken(secret []byte, username string, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Username: username,
		StandardClaims: jwt.StandardClaims{
			Subject:   username,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseSessionToken(secret []byte, tokenString string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// parseECDSAPrivateKeyHex parses a hex-encoded big-endian P-256 scalar
// into a usable VRF signing key.
func parseECDSAPrivateKeyHex(hexKey string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("gameserver: decode vrf key: %w", err)
	}
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	x, y := curve.ScalarBaseMult(d.Bytes())
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}, nil
}
