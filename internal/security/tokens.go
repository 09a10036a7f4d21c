package security

import (
	"crypto"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSigningKey is returned when a token is issued without a private key.
	ErrNoSigningKey = errors.New("no signing key configured")
)

// SessionClaims are the identity provider's session token claims. The active organization,
// the role in it and any explicit permission overrides ("action:resource") travel with the session.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID      string   `json:"sid"`
	OrgID          string   `json:"org_id,omitempty"`
	OrgRole        string   `json:"org_role,omitempty"`
	OrgPermissions []string `json:"org_permissions,omitempty"`
}

// DefaultLeeway absorbs clock skew between the identity provider and this service.
const DefaultLeeway = 30 * time.Second

// TokenVerifier validates session JWTs signed with RS256 or ES256.
type TokenVerifier struct {
	publicKey crypto.PublicKey
	issuer    string
	audience  string
	leeway    time.Duration
	now       func() time.Time
}

// NewTokenVerifier returns a verifier that accepts tokens signed by publicKey for issuer and audience.
// An empty audience skips the aud check; some identity providers omit it on session tokens.
func NewTokenVerifier(publicKey crypto.PublicKey, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{publicKey: publicKey, issuer: issuer, audience: audience, leeway: DefaultLeeway, now: time.Now}
}

// Verify parses and validates token (signature, alg, exp, nbf, iss, aud) and returns its claims.
// Tokens without a subject or session id are rejected.
func (v *TokenVerifier) Verify(token string) (*SessionClaims, error) {
	alg := KeyAlg(v.publicKey)
	if alg == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenIssuer signs session tokens. Production tokens come from the identity provider;
// the issuer exists for development seeding and tests.
type TokenIssuer struct {
	signer   crypto.Signer
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenIssuer returns an issuer signing with signer (RS256 or ES256).
func NewTokenIssuer(signer crypto.Signer, issuer, audience string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{signer: signer, issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

// Issue signs a token for the given session. Registered claims other than the subject are filled in.
// Returns the token and its expiration time.
func (p *TokenIssuer) Issue(userID string, claims SessionClaims) (string, time.Time, error) {
	if p == nil || p.signer == nil {
		return "", time.Time{}, ErrNoSigningKey
	}
	var method jwt.SigningMethod
	switch KeyAlg(p.signer.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidKey
	}
	now := p.now().UTC()
	expiresAt := now.Add(p.ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(p.signer)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}
