package auth

import (
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = 24 * time.Hour

type TokenManager struct {
	secretKey []byte
}

type Claims struct {
	UserID uuid.UUID
	Role   model.Role
}

func NewTokenManager(secretKey string) *TokenManager {
	return &TokenManager{[]byte(secretKey)}
}

func (tm *TokenManager) GenerateToken(userID uuid.UUID, role model.Role) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"role":    string(role),
		"exp":     time.Now().Add(tokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

func (tm *TokenManager) ParseToken(tokenStr string) (Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errs.ErrInvalidToken
		}
		return tm.secretKey, nil
	})

	if err != nil || !token.Valid {
		return Claims{}, errs.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errs.ErrInvalidToken
	}

	rawID, ok := claims["user_id"].(string)
	if !ok {
		return Claims{}, errs.ErrInvalidToken
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return Claims{}, errs.ErrInvalidToken
	}

	role, _ := claims["role"].(string)
	switch model.Role(role) {
	case model.RoleSeller, model.RoleAdmin:
	default:
		return Claims{}, errs.ErrInvalidToken
	}

	return Claims{UserID: userID, Role: model.Role(role)}, nil
}
