package token

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// RS256 is the JWS algorithm name used in JWKs and token headers.
const RS256 = "RS256"

// KeyPair is an asymmetric signing key with its published key id.
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string
}

// JWKS is a JSON Web Key Set, served from the jwks_uri endpoint.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is a single JSON Web Key (RSA public keys only here).
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// GenerateRSAKeyPair generates an RSA key pair for RS256 signing. Key
// sizes below 2048 bits are raised to 2048.
func GenerateRSAKeyPair(keyID string, bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateRSAKeyPair] rsa.GenerateKey")
	}
	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  RS256,
	}, nil
}

// GetSigningMethod returns the JWT signing method for this key pair.
func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}

// ToJWK exports the public key as a JWK.
func (kp *KeyPair) ToJWK() (*JWK, error) {
	rsaPub, ok := kp.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("[KeyPair.ToJWK] only RSA public keys are supported")
	}
	return &JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.KeyID,
		Alg: kp.Algorithm,
		N:   base64.RawURLEncoding.EncodeToString(rsaPub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(rsaPub.E)).Bytes()),
	}, nil
}
