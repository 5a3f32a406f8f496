package grants

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// AssertionClaims is the subset of assertion claims the grant needs
// after signature verification.
type AssertionClaims struct {
	Issuer   string
	Subject  string
	Audience []string
	Expiry   time.Time
}

// AssertionVerifier verifies a jwt-bearer assertion's signature against
// a trusted issuer's key set and returns its claims. The issuer trust
// decision lives inside the verifier; an untrusted issuer is simply a
// verification failure.
type AssertionVerifier interface {
	Verify(ctx context.Context, assertion string) (*AssertionClaims, error)
}

// LocalKeySetVerifier verifies assertions against statically configured
// issuer keys using golang-jwt.
type LocalKeySetVerifier struct {
	// Keys maps a trusted issuer to its verification key (an HMAC
	// secret, *rsa.PublicKey or *ecdsa.PublicKey).
	Keys map[string]any

	// Methods is the signing-method allow-list (e.g. "RS256").
	Methods []string
}

func (v *LocalKeySetVerifier) Verify(ctx context.Context, assertion string) (*AssertionClaims, error) {
	keyFunc := func(token *jwt.Token) (any, error) {
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return nil, jwt.ErrTokenInvalidClaims
		}
		issuer, _ := claims.GetIssuer()
		key, ok := v.Keys[issuer]
		if !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return key, nil
	}

	parsed, err := jwt.Parse(assertion, keyFunc,
		jwt.WithValidMethods(v.Methods),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	claims := parsed.Claims.(jwt.MapClaims)
	issuer, _ := claims.GetIssuer()
	subject, _ := claims.GetSubject()
	audience, _ := claims.GetAudience()
	expiry, _ := claims.GetExpirationTime()

	out := &AssertionClaims{Issuer: issuer, Subject: subject, Audience: audience}
	if expiry != nil {
		out.Expiry = expiry.Time
	}
	return out, nil
}

// RemoteKeySetVerifier verifies assertions against a trusted issuer's
// published JWKS, fetched and cached by go-oidc.
type RemoteKeySetVerifier struct {
	Issuer string
	KeySet *oidc.RemoteKeySet
}

// NewRemoteKeySetVerifier builds a verifier fetching keys from jwksURL.
func NewRemoteKeySetVerifier(ctx context.Context, issuer, jwksURL string) *RemoteKeySetVerifier {
	return &RemoteKeySetVerifier{
		Issuer: issuer,
		KeySet: oidc.NewRemoteKeySet(ctx, jwksURL),
	}
}

func (v *RemoteKeySetVerifier) Verify(ctx context.Context, assertion string) (*AssertionClaims, error) {
	payload, err := v.KeySet.VerifySignature(ctx, assertion)
	if err != nil {
		return nil, err
	}
	var claims struct {
		Iss string          `json:"iss"`
		Sub string          `json:"sub"`
		Aud json.RawMessage `json:"aud"`
		Exp int64           `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, err
	}
	if claims.Iss != v.Issuer {
		return nil, jwt.ErrTokenInvalidIssuer
	}
	return &AssertionClaims{
		Issuer:   claims.Iss,
		Subject:  claims.Sub,
		Audience: decodeAudience(claims.Aud),
		Expiry:   time.Unix(claims.Exp, 0),
	}, nil
}

func decodeAudience(raw json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var many []string
	_ = json.Unmarshal(raw, &many)
	return many
}

// JWTBearer implements the RFC 7523 jwt-bearer grant: a signed assertion
// from a trusted issuer is exchanged for tokens issued to the subject it
// names.
type JWTBearer struct {
	verifier AssertionVerifier
	audience string
	nowFunc  func() time.Time
}

// NewJWTBearer builds the grant. audience is the value an assertion must
// be addressed to (normally the token endpoint URL or issuer id).
func NewJWTBearer(verifier AssertionVerifier, audience string, nowFunc func() time.Time) *JWTBearer {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &JWTBearer{verifier: verifier, audience: audience, nowFunc: nowFunc}
}

func (*JWTBearer) Name() oauth2.GrantType { return oauth2.JWTBearerGrant }

func (*JWTBearer) AssociatedResponseTypes() []oauth2.ResponseType { return nil }

func (*JWTBearer) CheckRequest(r *http.Request) error {
	if r.PostFormValue("assertion") == "" {
		return oauth2.NewError(oauth2.ErrCodeInvalidRequest, `The "assertion" parameter is missing.`)
	}
	return nil
}

func (*JWTBearer) PrepareResponse(context.Context, *http.Request, *GrantTypeData) error {
	return nil
}

func (g *JWTBearer) Grant(ctx context.Context, r *http.Request, data *GrantTypeData) error {
	rejected := oauth2.NewError(oauth2.ErrCodeInvalidGrant, "The assertion is invalid.")

	claims, err := g.verifier.Verify(ctx, r.PostFormValue("assertion"))
	if err != nil {
		return rejected
	}
	if claims.Subject == "" {
		return rejected
	}
	if !claims.Expiry.IsZero() && g.nowFunc().After(claims.Expiry) {
		return rejected
	}
	if g.audience != "" && !containsAudience(claims.Audience, g.audience) {
		return rejected
	}
	data.ResourceOwnerID = claims.Subject
	return nil
}

func containsAudience(audience []string, wanted string) bool {
	for _, a := range audience {
		if a == wanted {
			return true
		}
	}
	return false
}
