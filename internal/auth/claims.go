package auth

import (
	"errors"
	"fmt"
	"strings"

	"finna-payment/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken    = errors.New("missing access token")
	ErrInvalidToken    = errors.New("invalid access token")
	ErrMissingIdentity = errors.New("token carries no patron identity")
)

// Claims issued by the discovery frontend for a logged-in patron. The
// frontend reads the payable fines from the library system and signs them
// into the token together with the page the patron returns to.
type Claims struct {
	UserID      int64        `json:"user_id"`
	CatUsername string       `json:"cat_username"`
	Name        string       `json:"name,omitempty"`
	Email       string       `json:"email,omitempty"`
	Lang        string       `json:"lang,omitempty"`
	Fines       []utils.Fine `json:"fines,omitempty"`
	ReturnURL   string       `json:"return_url,omitempty"`
	jwt.RegisteredClaims
}

// ParseIdentity validates an HS256 token and returns the patron it names.
func ParseIdentity(tokenStr string, secret []byte) (utils.Identity, error) {
	if tokenStr == "" {
		return utils.Identity{}, ErrMissingToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return utils.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID == 0 || strings.TrimSpace(claims.CatUsername) == "" {
		return utils.Identity{}, ErrMissingIdentity
	}

	return utils.Identity{
		UserID:      claims.UserID,
		CatUsername: claims.CatUsername,
		Name:        claims.Name,
		Email:       claims.Email,
		Language:    claims.Lang,
		Fines:       claims.Fines,
		ReturnURL:   claims.ReturnURL,
	}, nil
}
