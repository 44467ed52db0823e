package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/iinsaf-marketplace-go/config"
	"github.com/phillip/iinsaf-marketplace-go/metrics"
	models "github.com/phillip/iinsaf-marketplace-go/models"
)

const testSecret = "test-secret"

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(metrics.New()))
	chain := append([]gin.HandlerFunc{AuthMiddleware(&config.Config{JWTSecret: testSecret})}, handlers...)
	chain = append(chain, func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": actor.ID.Hex(), "role": actor.Role})
	})
	r.GET("/me", chain...)
	return r
}

func do(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, role string, sections ...string) (string, primitive.ObjectID) {
	t.Helper()
	user := models.User{ID: primitive.NewObjectID(), Role: role, Verified: true, AssignedSections: sections}
	raw, err := IssueToken(testSecret, user, time.Hour)
	require.NoError(t, err)
	return raw, user.ID
}

func TestAuthMiddleware(t *testing.T) {
	require := require.New(t)
	r := newRouter()

	w := do(r, "")
	require.Equal(http.StatusUnauthorized, w.Code)
	require.NotEmpty(w.Header().Get(HeaderRequestID))

	require.Equal(http.StatusUnauthorized, do(r, "garbage").Code)

	other := models.User{ID: primitive.NewObjectID(), Role: models.RoleReporter}
	forged, err := IssueToken("another-secret", other, time.Hour)
	require.NoError(err)
	require.Equal(http.StatusUnauthorized, do(r, forged).Code)

	expired, err := IssueToken(testSecret, other, -time.Hour)
	require.NoError(err)
	require.Equal(http.StatusUnauthorized, do(r, expired).Code)

	raw, id := token(t, models.RoleReporter)
	w = do(r, raw)
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), id.Hex())
}

func TestRequireRoles(t *testing.T) {
	require := require.New(t)
	r := newRouter(RequireRoles(models.RoleAdvertiser))

	raw, _ := token(t, models.RoleReporter)
	require.Equal(http.StatusForbidden, do(r, raw).Code)

	raw, _ = token(t, models.RoleAdvertiser)
	require.Equal(http.StatusOK, do(r, raw).Code)
}

func TestRequireSection(t *testing.T) {
	require := require.New(t)
	r := newRouter(RequireSection(models.SectionAds))

	raw, _ := token(t, models.RoleAdmin, models.SectionConferences)
	require.Equal(http.StatusForbidden, do(r, raw).Code)

	raw, _ = token(t, models.RoleAdmin, models.SectionAds)
	require.Equal(http.StatusOK, do(r, raw).Code)

	raw, _ = token(t, models.RoleSuperAdmin)
	require.Equal(http.StatusOK, do(r, raw).Code)

	raw, _ = token(t, models.RoleReporter, models.SectionAds)
	require.Equal(http.StatusForbidden, do(r, raw).Code)
}
