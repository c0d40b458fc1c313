package jwtmiddleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linemk/online-store/internal/domain/models"
	"github.com/linemk/online-store/internal/security/jwtmiddleware"
	"github.com/stretchr/testify/assert"
)

func signToken(t *testing.T, secret string, userID int64, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)
	return signed
}

func withPrincipalCtx(req *http.Request, userID int64, role string) context.Context {
	return context.WithValue(req.Context(), jwtmiddleware.PrincipalKey,
		jwtmiddleware.Principal{UserID: userID, Role: role})
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	os.Setenv("JWT_SECRET", "testsecret")
	defer os.Unsetenv("JWT_SECRET")

	mw := jwtmiddleware.NewJWTMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	os.Setenv("JWT_SECRET", "testsecret")
	defer os.Unsetenv("JWT_SECRET")

	mw := jwtmiddleware.NewJWTMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMiddleware_InvalidSignature(t *testing.T) {
	os.Setenv("JWT_SECRET", "testsecret")
	defer os.Unsetenv("JWT_SECRET")

	mw := jwtmiddleware.NewJWTMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	// Токен подписан другим секретом.
	token := signToken(t, "wrongsecret", 1, models.RoleCustomer)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	os.Setenv("JWT_SECRET", "testsecret")
	defer os.Unsetenv("JWT_SECRET")

	mw := jwtmiddleware.NewJWTMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "1",
		"role": models.RoleCustomer,
		"exp":  time.Now().Add(-time.Hour).Unix(),
		"iat":  time.Now().Add(-2 * time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("testsecret"))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	os.Setenv("JWT_SECRET", "testsecret")
	defer os.Unsetenv("JWT_SECRET")

	mw := jwtmiddleware.NewJWTMiddleware()

	var gotPrincipal jwtmiddleware.Principal
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := jwtmiddleware.FromContext(r.Context())
		assert.True(t, ok, "Principal should be present in the request context")
		gotPrincipal = principal
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, "testsecret", 42, models.RoleProductManager)

	req := httptest.NewRequest(http.MethodGet, "/orders/all", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), gotPrincipal.UserID)
	assert.Equal(t, models.RoleProductManager, gotPrincipal.Role)
}

func TestRequireRole_Mismatch(t *testing.T) {
	handler := jwtmiddleware.RequireRole(models.RoleProductManager)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached for the wrong role")
		}))

	req := httptest.NewRequest(http.MethodGet, "/orders/all", nil)
	req = req.WithContext(withPrincipalCtx(req, 1, models.RoleCustomer))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code, "Role mismatch should report 403")
}

func TestRequireRole_NoPrincipal(t *testing.T) {
	handler := jwtmiddleware.RequireRole(models.RoleProductManager)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not be reached without a principal")
		}))

	req := httptest.NewRequest(http.MethodGet, "/orders/all", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole_Match(t *testing.T) {
	handler := jwtmiddleware.RequireRole(models.RoleProductManager)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/orders/all", nil)
	req = req.WithContext(withPrincipalCtx(req, 1, models.RoleProductManager))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
