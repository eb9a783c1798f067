package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired reports a token whose claims validate except for exp.
	// Recoverable via the refresh flow.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid reports a token that fails signature, issuer,
	// audience, or structural checks. Not recoverable without re-login.
	ErrTokenInvalid = errors.New("token invalid")
)

const refreshTokenType = "refresh"

// Config defines the signing parameters shared by access and refresh
// tokens. Instances are treated as immutable after NewManager.
type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Manager signs and verifies tokens with a single shared HS256 secret.
type Manager struct {
	config Config
}

// AccessClaims is the self-contained access-token claim set. The JSON
// keys match the wire format the admin UI decodes.
type AccessClaims struct {
	UserID   int64  `json:"userId"`
	ClientIP string `json:"clientAccessIp"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-artifact claim set. The type marker keeps
// a refresh token from ever passing as an access token.
type RefreshClaims struct {
	UserID    int64  `json:"userId"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a secret")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess mints an access token for userID bound to the client IP
// observed at issuance. Expiry is now+AccessTTL; no server-side state is
// written.
func (m *Manager) CreateAccess(userID int64, clientIP string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:   userID,
		ClientIP: clientIP,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// CreateRefresh mints the signed refresh artifact for userID. The caller
// is responsible for persisting the matching server-side record; the
// artifact alone never grants a refresh.
func (m *Manager) CreateRefresh(userID int64) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID:    userID,
		TokenType: refreshTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// ParseAccess fully validates an access token: signature, issuer,
// audience, and expiry. Returns [ErrTokenExpired] when only the expiry
// check failed and [ErrTokenInvalid] for every other failure, so callers
// can drive the 40001-versus-401 decision.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.NewParser(m.parserOptions()...).ParseWithClaims(tokenStr, claims, m.keyFunc)
	if err != nil {
		return nil, classifyParseError(err)
	}
	return claims, nil
}

// ParseAccessAllowExpired is the refresh-flow entry point. It enforces
// signature, issuer, and audience exactly as ParseAccess does, but waives
// the expiry check so the userId claim stays readable past the 60-second
// window. This is a deliberate trust boundary: the signature is still
// required to be valid, only the time check is skipped.
func (m *Manager) ParseAccessAllowExpired(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(tokenStr, claims, m.keyFunc); err != nil {
		return nil, ErrTokenInvalid
	}

	// Claims validation was skipped wholesale above, so issuer and
	// audience must be re-checked by hand.
	if m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
		return nil, ErrTokenInvalid
	}
	if m.config.Audience != "" && !containsAudience(claims.Audience, m.config.Audience) {
		return nil, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh validates a refresh artifact, including its type marker.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	_, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, m.keyFunc)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if claims.TokenType != refreshTokenType {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) parserOptions() []jwt.ParserOption {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}
	return options
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	return m.config.Secret, nil
}

// classifyParseError collapses the library's joined errors into the
// two-tier scheme. Expired wins only when nothing else failed; a token
// with a bad signature stays invalid no matter what its exp says.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
