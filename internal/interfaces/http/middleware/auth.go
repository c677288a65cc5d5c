package middleware

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/auth"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/common"
)

const claimsKey = "auth_claims"

// Authenticate verifies the bearer token of every request and stores the
// claims on the gin and request contexts.  Failures end the request with 401.
func Authenticate(v auth.Verifier, logger logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortAuth(c, http.StatusUnauthorized, auth.ErrMissingToken)
			return
		}
		claims, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			logger.Warn("authentication failed",
				logging.String("path", c.Request.URL.Path),
				logging.String("client_ip", c.ClientIP()),
				logging.Err(err))
			abortAuth(c, http.StatusUnauthorized, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(auth.ContextWithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// Authorize checks the permission the matched route requires.  Routes absent
// from perms are denied.
func Authorize(perms map[string]auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		perm, ok := perms[c.FullPath()]
		claims := GetClaims(c)
		if !ok || !claims.Allows(perm) {
			abortAuth(c, http.StatusForbidden,
				errors.Newf(errors.ErrCodeForbidden, "permission %q required", perm))
			return
		}
		c.Next()
	}
}

// GetClaims returns the claims set by Authenticate, or nil.
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func abortAuth(c *gin.Context, status int, err error) {
	code, msg := errors.ErrCodeUnauthorized, err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		code, msg = appErr.Code, appErr.Message
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="legaldoc"`)
	}
	c.AbortWithStatusJSON(status, common.APIResponse[any]{
		Error:     &common.ErrorDetail{Code: string(code), Message: msg},
		RequestID: GetRequestID(c),
		Timestamp: common.Now(),
	})
}
