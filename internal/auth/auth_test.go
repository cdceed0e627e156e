package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	apikeydomain "github.com/smallbiznis/chatorder/internal/apikey/domain"
	"github.com/smallbiznis/chatorder/internal/auth/domain"
	"github.com/smallbiznis/chatorder/internal/config"
	orgdomain "github.com/smallbiznis/chatorder/internal/organization/domain"
	"github.com/smallbiznis/chatorder/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testAudience = "https://api.chatorder.test"

type idpFixture struct {
	key     *rsa.PrivateKey
	kid     string
	jwksURL string
}

func newIdP(t *testing.T) *idpFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fx := &idpFixture{key: key, kid: "test-key-1"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"keys": []map[string]string{{
				"kid": fx.kid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		}
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	fx.jwksURL = srv.URL
	return fx
}

func (f *idpFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = f.kid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *idpFixture) validToken(t *testing.T, sub string) string {
	return f.sign(t, jwt.MapClaims{
		"sub":   sub,
		"aud":   testAudience,
		"email": "rahul@example.com",
		"name":  "Rahul Sharma",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})
}

func newVerifier(t *testing.T, idp *idpFixture) *Verifier {
	return NewVerifier(config.Config{IdPAudience: testAudience, IdPJWKSURL: idp.jwksURL}, zap.NewNop())
}

func TestVerify_ValidToken(t *testing.T) {
	idp := newIdP(t)
	verifier := newVerifier(t, idp)

	claims, err := verifier.Verify(context.Background(), idp.validToken(t, "auth0|user-1"))
	require.NoError(t, err)
	assert.Equal(t, "auth0|user-1", claims.Subject)
	assert.Equal(t, "rahul@example.com", claims.Email)
}

func TestVerify_Rejections(t *testing.T) {
	idp := newIdP(t)
	verifier := newVerifier(t, idp)

	wrongAudience := idp.sign(t, jwt.MapClaims{
		"sub": "u", "aud": "https://other.api", "exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err := verifier.Verify(context.Background(), wrongAudience)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	expired := idp.sign(t, jwt.MapClaims{
		"sub": "u", "aud": testAudience, "exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err = verifier.Verify(context.Background(), expired)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = verifier.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	otherKey, genErr := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, genErr)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "u", "aud": testAudience, "exp": time.Now().Add(time.Hour).Unix(),
	})
	forged.Header["kid"] = idp.kid
	forgedString, signErr := forged.SignedString(otherKey)
	require.NoError(t, signErr)
	_, err = verifier.Verify(context.Background(), forgedString)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func serviceFixture(t *testing.T, idp *idpFixture) (*Service, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&domain.User{},
		&orgdomain.Organization{},
		&orgdomain.Role{},
		&apikeydomain.APIKey{},
	))
	return NewService(conn, newVerifier(t, idp), zap.NewNop()), conn
}

func TestAuthenticateBearer_ProvisionsUser(t *testing.T) {
	idp := newIdP(t)
	svc, conn := serviceFixture(t, idp)

	identity, err := svc.AuthenticateBearer(context.Background(), idp.validToken(t, "auth0|new-user"))
	require.NoError(t, err)
	assert.Equal(t, "auth0|new-user", identity.UserID)
	assert.Equal(t, orgcontext.AuthTypeUser, identity.AuthType)
	assert.Empty(t, identity.OrgID)

	var user domain.User
	require.NoError(t, conn.Where("id = ?", "auth0|new-user").First(&user).Error)
	assert.Equal(t, "rahul@example.com", user.Email)
	assert.Equal(t, "member", user.Role)

	// A second login reuses the row.
	_, err = svc.AuthenticateBearer(context.Background(), idp.validToken(t, "auth0|new-user"))
	require.NoError(t, err)
	var count int64
	conn.Model(&domain.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAuthenticateAPIKey(t *testing.T) {
	idp := newIdP(t)
	svc, conn := serviceFixture(t, idp)

	raw, hash, mask, err := apikeydomain.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, conn.Create(&apikeydomain.APIKey{
		ID: "key-1", OrganizationID: "org-a", Name: "integration",
		KeyHash: hash, KeyMask: mask, IsActive: true,
	}).Error)

	identity, err := svc.AuthenticateAPIKey(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "org-a", identity.OrgID)
	assert.Equal(t, orgcontext.AuthTypeAPIKey, identity.AuthType)
	assert.Empty(t, identity.UserID)

	var stored apikeydomain.APIKey
	require.NoError(t, conn.First(&stored, "id = ?", "key-1").Error)
	assert.NotNil(t, stored.LastUsedAt)

	_, err = svc.AuthenticateAPIKey(context.Background(), "co_live_bogus")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Deactivated keys stop working immediately.
	require.NoError(t, conn.Model(&apikeydomain.APIKey{}).Where("id = ?", "key-1").Update("is_active", false).Error)
	_, err = svc.AuthenticateAPIKey(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestHasPermission(t *testing.T) {
	idp := newIdP(t)
	svc, conn := serviceFixture(t, idp)

	orgID := "org-a"
	require.NoError(t, conn.Create(&domain.User{ID: "u-member", Email: "m@x.in", OrganizationID: &orgID, Role: "member"}).Error)
	require.NoError(t, conn.Create(&domain.User{ID: "u-custom", Email: "c@x.in", OrganizationID: &orgID, Role: "ops"}).Error)

	perms, _ := json.Marshal([]orgdomain.Permission{orgdomain.PermViewOrders, orgdomain.PermViewPII})
	require.NoError(t, conn.Create(&orgdomain.Role{
		ID: "role-ops", OrganizationID: orgID, Name: "ops", Permissions: datatypes.JSON(perms),
	}).Error)

	member := &Identity{OrgID: orgID, UserID: "u-member", AuthType: orgcontext.AuthTypeUser}
	custom := &Identity{OrgID: orgID, UserID: "u-custom", AuthType: orgcontext.AuthTypeUser}
	apiKey := &Identity{OrgID: orgID, AuthType: orgcontext.AuthTypeAPIKey}

	// Fallback roles apply when the tenant defined no role rows.
	assert.True(t, svc.HasPermission(context.Background(), member, orgdomain.PermEditOrders))
	assert.False(t, svc.HasPermission(context.Background(), member, orgdomain.PermViewPII))

	// Tenant-defined roles win over the fallback.
	assert.True(t, svc.HasPermission(context.Background(), custom, orgdomain.PermViewPII))
	assert.False(t, svc.HasPermission(context.Background(), custom, orgdomain.PermManageUsers))

	// API keys operate on data but cannot administer the tenant.
	assert.True(t, svc.HasPermission(context.Background(), apiKey, orgdomain.PermViewPII))
	assert.False(t, svc.HasPermission(context.Background(), apiKey, orgdomain.PermManageAPIKeys))

	// Unknown identities deny.
	ghost := &Identity{OrgID: orgID, UserID: "u-ghost", AuthType: orgcontext.AuthTypeUser}
	assert.False(t, svc.HasPermission(context.Background(), ghost, orgdomain.PermViewOrders))
}
