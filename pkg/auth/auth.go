package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var jwtAlgorithm = jwt.SigningMethodHS256

// TokenLifetime matches a working shift plus slack
const TokenLifetime = 8 * time.Hour

// Claims represents the JWT claims
type Claims struct {
	EmployeeID uint        `json:"employee_id"`
	Username   string      `json:"username"`
	Role       models.Role `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token belongs to an administrator
func (c *Claims) IsAdmin() bool { return c.Role == models.RoleAdmin }

// Signer issues and verifies session tokens and integration keys
type Signer struct {
	jwtSecret    []byte
	masterSecret []byte
	now          func() time.Time
}

// NewSigner creates a Signer from the JWT and integration master secrets
func NewSigner(jwtSecret, masterSecret string) *Signer {
	return &Signer{
		jwtSecret:    []byte(jwtSecret),
		masterSecret: []byte(masterSecret),
		now:          time.Now,
	}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateToken creates a new JWT token for an employee
func (s *Signer) CreateToken(emp *database.Employee) (string, error) {
	claims := &Claims{
		EmployeeID: emp.ID,
		Username:   emp.Username,
		Role:       emp.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
	}

	token := jwt.NewWithClaims(jwtAlgorithm, claims)
	return token.SignedString(s.jwtSecret)
}

// VerifyToken verifies a JWT token
func (s *Signer) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtAlgorithm {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// EnsureAdminExists creates the default administrator when no admin exists yet
func EnsureAdminExists(db *gorm.DB, username, password string) error {
	var count int64
	if err := db.Model(&database.Employee{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	admin := database.Employee{
		Username:     username,
		Email:        username + "@workload.local",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		HoursPerWeek: 40,
		Active:       true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	log.Printf("default admin user created: %s", username)
	return nil
}

// GenerateHMACKey creates a signed integration key using HMAC-SHA256
func (s *Signer) GenerateHMACKey(clientID string) string {
	return clientID + "." + s.sign(clientID)
}

// VerifyHMACKey validates an HMAC-signed integration key and returns its client id
func (s *Signer) VerifyHMACKey(key string) (string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 || parts[0] == "" {
		return "", errors.New("invalid key format")
	}

	clientID := parts[0]
	expected := s.sign(clientID)

	// constant-time comparison
	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return "", errors.New("invalid signature")
	}

	return clientID, nil
}

func (s *Signer) sign(clientID string) string {
	h := hmac.New(sha256.New, s.masterSecret)
	h.Write([]byte(clientID))
	return hex.EncodeToString(h.Sum(nil))
}

// KeyPreview masks a key for display
func KeyPreview(key string) string {
	if len(key) > 8 {
		return key[:3] + "..." + key[len(key)-4:]
	}
	return "****"
}
