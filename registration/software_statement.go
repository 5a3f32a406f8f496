package registration

import (
	"context"
	"encoding/json"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/jrsteele09/go-oidc-provider/chain"
	"github.com/jrsteele09/go-oidc-provider/clients"
	"github.com/jrsteele09/go-oidc-provider/oauth2"
)

// statementSignatureAlgorithms is the alg allow-list for software
// statements. Symmetric algorithms are excluded: the statement issuer is
// a third party and must not share a secret with every registrar.
var statementSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
}

var errInvalidStatement = oauth2.NewError(oauth2.ErrCodeInvalidSoftwareStatement,
	"The software statement is invalid.")

// SoftwareStatementRule verifies an RFC 7591 software statement: a JWS
// signed by a trusted issuer asserting client metadata. Verified claims
// on the permit list are merged into the validated parameter set and win
// over the directly requested values.
type SoftwareStatementRule struct {
	keys      *jose.JSONWebKeySet
	permitted []string
	required  bool
}

// StatementOption configures the rule.
type StatementOption func(*SoftwareStatementRule)

// WithRequiredStatement rejects registrations without a statement.
func WithRequiredStatement() StatementOption {
	return func(r *SoftwareStatementRule) { r.required = true }
}

// NewSoftwareStatementRule builds the rule. keys is the fixed set of
// trusted statement-issuer keys; permitted lists the claims that may be
// merged into the client metadata.
func NewSoftwareStatementRule(keys *jose.JSONWebKeySet, permitted []string, options ...StatementOption) *SoftwareStatementRule {
	r := &SoftwareStatementRule{keys: keys, permitted: permitted}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *SoftwareStatementRule) Handle(ctx context.Context, regCtx *Context, next chain.Next[*Context]) (*Context, error) {
	raw := regCtx.Requested.GetString(clients.MetadataSoftwareStatement)
	if raw == "" {
		if r.required {
			return regCtx, oauth2.NewError(oauth2.ErrCodeInvalidSoftwareStatement,
				"A software statement is required.")
		}
		return next(ctx, regCtx)
	}

	claims, err := r.verify(raw)
	if err != nil {
		return regCtx, err
	}
	for _, key := range r.permitted {
		if value, ok := claims[key]; ok {
			regCtx.Validated.Set(key, value)
		}
	}
	regCtx.Validated.Set(clients.MetadataSoftwareStatement, raw)
	return next(ctx, regCtx)
}

// verify parses the JWS under the alg allow-list, checks the signature
// against the trusted key set and decodes the JSON claims.
func (r *SoftwareStatementRule) verify(raw string) (map[string]any, error) {
	jws, err := jose.ParseSigned(raw, statementSignatureAlgorithms)
	if err != nil {
		return nil, errInvalidStatement
	}

	var payload []byte
	for _, key := range r.keys.Keys {
		if verified, err := jws.Verify(key); err == nil {
			payload = verified
			break
		}
	}
	if payload == nil {
		return nil, errInvalidStatement
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errInvalidStatement
	}
	return claims, nil
}
