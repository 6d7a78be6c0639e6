package voiceagent

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	tokenExpiryMs   = 10 * 60 * 1000
	apiKeyMinLength = 16
)

// ValidateAPIKeyFormat checks the shape of an API credential before it is
// used for token minting.
func ValidateAPIKeyFormat(apiKey string) *AgentError {
	if len(apiKey) < apiKeyMinLength {
		return NewAuthError("API key too short")
	}
	return nil
}

// MintWSToken creates a short-lived HS256 token signed with the API key.
// The token is carried on the websocket dial as a bearer header; the API
// key itself never appears on a wire frame.
func MintWSToken(apiKey string, conversationHint string) (*WSToken, *AgentError) {
	if err := ValidateAPIKeyFormat(apiKey); err != nil {
		return nil, err
	}

	expiresAt := time.Now().UnixMilli() + tokenExpiryMs

	claims := jwt.MapClaims{
		"exp": expiresAt / 1000, // JWT expects seconds
		"iat": time.Now().Unix(),
	}
	if conversationHint != "" {
		claims["conversation"] = conversationHint
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(apiKey))
	if err != nil {
		return nil, WrapError(err, ErrCodeAuthFailed)
	}

	return &WSToken{Token: tokenString, ExpiresAt: expiresAt}, nil
}

// IsTokenExpired reports whether the token's expiry has passed.
func IsTokenExpired(token *WSToken) bool {
	return time.Now().UnixMilli() > token.ExpiresAt
}

// TokenTTL returns the remaining lifetime in seconds, zero when expired.
func TokenTTL(token *WSToken) int {
	ttl := (token.ExpiresAt - time.Now().UnixMilli()) / 1000
	if ttl < 0 {
		return 0
	}
	return int(ttl)
}

// DecodeWSToken parses and verifies a token minted by MintWSToken.
func DecodeWSToken(tokenString, apiKey string) (jwt.MapClaims, *AgentError) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(apiKey), nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeAuthFailed)
	}

	if claims, ok := parsed.Claims.(jwt.MapClaims); ok && parsed.Valid {
		return claims, nil
	}

	return nil, NewAuthError("invalid token")
}
