package service

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	uuid "github.com/google/uuid"
)

// TokenDetails ...
type TokenDetails struct {
	AccessToken string
	AccessUUID  string
	AtExpires   int64
}

// AccessDetails ...
type AccessDetails struct {
	AccessUUID string
	UserID     uint
	UserName   string
}

// Token ...
type Token struct {
	AccessToken string `json:"access_token"`
}

var ErrNoToken = errors.New("no bearer token")

// TokenService signs and verifies HS256 access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: 7 * 24 * time.Hour}
}

// CreateToken ...
func (t *TokenService) CreateToken(userID uint, userName string) (*TokenDetails, error) {
	td := &TokenDetails{}
	td.AtExpires = time.Now().Add(t.ttl).Unix()
	td.AccessUUID = uuid.New().String()

	var err error
	//Creating Access Token
	atClaims := jwt.MapClaims{}
	atClaims["authorized"] = true
	atClaims["access_uuid"] = td.AccessUUID
	atClaims["user_id"] = userID
	atClaims["user_name"] = userName
	atClaims["exp"] = td.AtExpires

	at := jwt.NewWithClaims(jwt.SigningMethodHS256, atClaims)
	td.AccessToken, err = at.SignedString(t.secret)
	if err != nil {
		return nil, err
	}
	return td, nil
}

// ExtractToken ...
func (t *TokenService) ExtractToken(r *http.Request) string {
	bearToken := r.Header.Get("Authorization")
	//normally Authorization the_token_xxx
	strArr := strings.Split(bearToken, " ")
	if len(strArr) == 2 {
		return strArr[1]
	}
	return ""
}

// VerifyToken ...
func (t *TokenService) VerifyToken(r *http.Request) (*jwt.Token, error) {
	tokenString := t.ExtractToken(r)
	if tokenString == "" {
		return nil, ErrNoToken
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		//Make sure that the token method conform to "SigningMethodHMAC"
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// TokenValid ...
func (t *TokenService) TokenValid(r *http.Request) error {
	token, err := t.VerifyToken(r)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// ExtractTokenMetadata ...
func (t *TokenService) ExtractTokenMetadata(r *http.Request) (*AccessDetails, error) {
	token, err := t.VerifyToken(r)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	accessUUID, ok := claims["access_uuid"].(string)
	if !ok {
		return nil, errors.New("token has no access_uuid")
	}
	userID, err := strconv.ParseUint(fmt.Sprintf("%.f", claims["user_id"]), 10, 64)
	if err != nil {
		return nil, err
	}
	userName, _ := claims["user_name"].(string)
	return &AccessDetails{
		AccessUUID: accessUUID,
		UserID:     uint(userID),
		UserName:   userName,
	}, nil
}
