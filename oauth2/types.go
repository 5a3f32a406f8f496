package oauth2

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Used in: Standard Authorization Code Flow
	// Token request includes: code, client_id, client credentials, redirect_uri, code_verifier (if PKCE)
	// Returns: access_token, id_token, refresh_token (if requested)
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ClientCredentialsGrant allows machine-to-machine authentication.
	// Used in: Backend service authentication (no user context)
	// Token request includes: client credentials, scope
	// Returns: access_token (no refresh_token or id_token)
	ClientCredentialsGrant GrantType = "client_credentials"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Used in: Token refresh flow (get new access token without re-authenticating the user)
	// Behavior: The consumed refresh token is revoked and a new one issued (rotation)
	RefreshTokenGrant GrantType = "refresh_token"

	// PasswordGrant exchanges resource-owner credentials for tokens.
	// Credential checking is delegated to an injected credential manager;
	// a mismatch is reported as invalid_grant.
	PasswordGrant GrantType = "password"

	// JWTBearerGrant exchanges a signed assertion issued by a trusted
	// issuer for tokens, per RFC 7523.
	JWTBearerGrant GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// ImplicitGrant exists only so a client may register it and so the
	// "token" response type can be associated with a grant. Invoking it
	// at the token endpoint is always invalid_grant.
	ImplicitGrant GrantType = "implicit"

	// NoneGrant mirrors the "none" response type. Authorization-endpoint
	// only; token-endpoint invocation is always invalid_grant.
	NoneGrant GrantType = "none"
)

// ResponseType represents the OAuth 2.0 response type requested at the
// authorization endpoint. A request may combine several space-separated
// response types (hybrid flows).
type ResponseType string

const (
	// CodeResponseType returns an authorization code to be exchanged at
	// the token endpoint. Default response mode: query.
	CodeResponseType ResponseType = "code"

	// TokenResponseType returns an access token directly (implicit flow).
	// Default response mode: fragment.
	TokenResponseType ResponseType = "token"

	// NoneResponseType persists the pending authorization without
	// returning credentials. Must be the sole response type requested.
	NoneResponseType ResponseType = "none"
)

// ResponseModeType denotes how authorization response parameters are
// returned to the client's redirect URI.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment.
	FragmentResponseMode ResponseModeType = "fragment"

	// FormPostResponseMode returns parameters via an auto-submitting
	// HTML form POST.
	FormPostResponseMode ResponseModeType = "form_post"
)

// CodeMethodType represents the PKCE code challenge method.
type CodeMethodType string

const (
	// CodeMethodS256 hashes the verifier: code_challenge = BASE64URL(SHA256(code_verifier)).
	CodeMethodS256 CodeMethodType = "S256"

	// CodeMethodPlain sends the verifier as the challenge. Weak; kept for
	// RFC 7636 compatibility. Whether public clients may use it is a
	// server policy decision.
	CodeMethodPlain CodeMethodType = "plain"
)

// AuthMethod names a client authentication method at the token endpoint.
type AuthMethod string

const (
	// AuthMethodNone is for public clients; no credential beyond client_id.
	AuthMethodNone AuthMethod = "none"

	// AuthMethodClientSecretBasic carries the secret in the HTTP Basic
	// Authorization header.
	AuthMethodClientSecretBasic AuthMethod = "client_secret_basic"

	// AuthMethodClientSecretPost carries the secret in the request body.
	AuthMethodClientSecretPost AuthMethod = "client_secret_post"

	// AuthMethodClientAssertionJWT authenticates with a signed JWT
	// assertion (private_key_jwt / client_secret_jwt style).
	AuthMethodClientAssertionJWT AuthMethod = "client_assertion_jwt"
)

// ClientAssertionTypeJWTBearer is the assertion_type value accompanying
// JWT client assertions, per RFC 7523.
const ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// SubjectType selects how the "sub" claim is derived for a client.
type SubjectType string

const (
	// SubjectTypePublic uses the raw resource-owner id.
	SubjectTypePublic SubjectType = "public"

	// SubjectTypePairwise derives a per-sector identifier so distinct
	// clients cannot correlate the same user.
	SubjectTypePairwise SubjectType = "pairwise"
)
