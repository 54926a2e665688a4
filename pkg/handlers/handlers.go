package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/assignment"
	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/importer"
	"github.com/arnavshah/workload-api-go/pkg/stats"
	"github.com/arnavshah/workload-api-go/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	ctxClaims         = "claims"
	ctxIntegrationKey = "integrationKey"
	ctxRequestID      = "requestID"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	Store       *store.Store
	Assignments *assignment.Service
	Stats       *stats.Service
	Importer    *importer.Importer
	Signer      *auth.Signer
	// MaxUploadBytes caps the size of import files
	MaxUploadBytes int64
}

// RequestID tags every request with an id, reusing X-Request-ID when the caller sends one
func (h *Handler) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// SecurityHeaders sets the headers every JSON response carries
func (h *Handler) SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	}
}

// AuthMiddleware verifies the JWT bearer token
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := h.Signer.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		// the row, not the token, decides whether the account is usable and its role
		emp, err := h.Store.GetEmployee(c.Request.Context(), claims.EmployeeID)
		if apperr.KindOf(err) == apperr.KindNotFound || (err == nil && !emp.Active) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account is inactive"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		claims.Role = emp.Role
		claims.Username = emp.Username

		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// RequireAdmin rejects authenticated users who are not administrators
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil || !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// IntegrationKeyMiddleware verifies HMAC integration keys and enforces their daily request limit
func (h *Handler) IntegrationKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearer(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Integration key required"})
			return
		}

		if _, err := h.Signer.VerifyHMACKey(key); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid integration key signature"})
			return
		}

		// only keys registered through /admin/keys or workloadctl keygen are accepted
		ik, err := h.Store.TouchIntegrationKey(c.Request.Context(), key)
		if apperr.KindOf(err) == apperr.KindNotFound {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Integration key revoked or unknown"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		used, err := h.Store.RequestsToday(c.Request.Context(), ik.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		if ik.RateLimit > 0 && used >= ik.RateLimit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Daily request limit reached"})
			return
		}

		c.Set(ctxIntegrationKey, ik)
		c.Next()
	}
}

func bearer(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	if len(token) > 7 && strings.EqualFold(token[:7], "Bearer ") {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func integrationKeyFrom(c *gin.Context) *database.IntegrationKey {
	v, ok := c.Get(ctxIntegrationKey)
	if !ok {
		return nil
	}
	k, _ := v.(*database.IntegrationKey)
	return k
}

func actorFrom(c *gin.Context) assignment.Actor {
	claims := claimsFrom(c)
	if claims == nil {
		return assignment.Actor{}
	}
	return assignment.Actor{EmployeeID: claims.EmployeeID, Admin: claims.IsAdmin()}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// idParam parses a positive numeric path parameter
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindInvalidTransition:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindCapacity:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": ...}. Unclassified errors are logged
// and hidden from the caller.
func respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Printf("[%s] %s %s: %v", requestID(c), c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	body := gin.H{"error": ae.Error(), "kind": ae.Kind.String()}
	if len(ae.Fields) > 0 {
		body["details"] = ae.Fields
	}
	c.AbortWithStatusJSON(statusFor(ae.Kind), body)
}

// bindError reports a request body that failed to decode or validate
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check"})
	}
	respondError(c, apperr.Validation("invalid request body", fields...))
}

func audit(c *gin.Context, format string, args ...any) {
	actor := "anonymous"
	if claims := claimsFrom(c); claims != nil {
		actor = claims.Username
	}
	log.Printf("[%s] %s: "+format, append([]any{requestID(c), actor}, args...)...)
}
