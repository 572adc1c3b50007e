package capability

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidGrant is returned when a grant token fails verification.
	ErrInvalidGrant = errors.New("invalid capability grant")

	errEmptySecret = errors.New("empty grant secret")
)

// Grant is a verified capability grant.
type Grant struct {
	ContextID    string
	Capabilities Set
	ExpiresAt    time.Time
}

// SignGrant issues an HS256 token granting capabilities to the execution context
// contextID. A remote sandbox builds its scope from the verified grant.
//
// Parameters:
//   - secret: the shared signing secret
//   - contextID: the execution context the grant is for
//   - capabilities: the granted capabilities
//   - ttl: how long the grant stays valid, 0 for no expiry
//
// Returns:
//   - string: the signed token
//   - error: error if the secret is empty or signing fails
func SignGrant(secret []byte, contextID string, capabilities Set, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errEmptySecret
	}

	names := make([]string, 0)
	for _, c := range capabilities.List() {
		names = append(names, string(c))
	}
	claims := gojwt.MapClaims{
		"context_id":   contextID,
		"capabilities": names,
		"iat":          time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign grant: %w", err)
	}
	return token, nil
}

// VerifyGrant checks a token issued by SignGrant.
//
// Parameters:
//   - secret: the shared signing secret
//   - token: the signed token
//
// Returns:
//   - *Grant: the verified grant
//   - error: ErrInvalidGrant if the signature, expiry or claims are invalid
func VerifyGrant(secret []byte, token string) (*Grant, error) {
	if len(secret) == 0 {
		return nil, errEmptySecret
	}

	parser := gojwt.NewParser(gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.Parse(token, func(*gojwt.Token) (any, error) { return secret, nil })
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}

	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return nil, ErrInvalidGrant
	}
	contextID, ok := claims["context_id"].(string)
	if !ok || contextID == "" {
		return nil, fmt.Errorf("%w: missing context_id", ErrInvalidGrant)
	}

	raw, _ := claims["capabilities"].([]any)
	capabilities := make([]Capability, 0, len(raw))
	for _, v := range raw {
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: malformed capabilities", ErrInvalidGrant)
		}
		capabilities = append(capabilities, Capability(name))
	}
	set, err := NewSet(capabilities...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}

	grant := &Grant{ContextID: contextID, Capabilities: set}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		grant.ExpiresAt = exp.Time
	}
	return grant, nil
}
