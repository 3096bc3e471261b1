package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fieldline/workspace-bff/internal/config"
	"github.com/fieldline/workspace-bff/model"
)

// --- test helpers ---

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func rsaKeyToJWK(kid string, pub *rsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func startJWKSServer(t *testing.T, keys ...map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signJWT(t *testing.T, key any, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func testIdentityCfg() config.IdentityConfig {
	return config.IdentityConfig{
		Mode:       "jwt",
		Issuer:     "https://auth.example.com",
		Audience:   "workspace-bff",
		Algorithms: []string{"RS256"},
	}
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "user-1",
		"email": "user@example.test",
		"iss":   "https://auth.example.com",
		"aud":   "workspace-bff",
		"exp":   jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		"iat":   jwt.NewNumericDate(time.Now()),
	}
}

// identityCapture records the identity the middleware injected.
func identityCapture(dst *model.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := model.IdentityFrom(r.Context()); ok {
			*dst = id
		}
		w.WriteHeader(http.StatusOK)
	})
}

// --- JWKSClient tests ---

func TestJWKSClient_GetKey_RSA(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwks := startJWKSServer(t, rsaKeyToJWK("rsa-key-1", &rsaKey.PublicKey))

	client := NewJWKSClient(jwks.URL, 1*time.Hour, nil)
	key, err := client.GetKey("rsa-key-1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	pubKey, ok := key.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("key type = %T, want *rsa.PublicKey", key)
	}
	if pubKey.N.Cmp(rsaKey.PublicKey.N) != 0 {
		t.Error("RSA modulus mismatch")
	}
}

func TestJWKSClient_GetKey_unknown(t *testing.T) {
	jwks := startJWKSServer(t) // empty JWKS

	client := NewJWKSClient(jwks.URL, 1*time.Hour, nil)
	if _, err := client.GetKey("nope"); err == nil {
		t.Fatal("GetKey with unknown kid should return error")
	}
}

// --- JWTAuthenticator tests ---

func runAuth(t *testing.T, cfg config.IdentityConfig, jwks *JWKSClient, authorization string) (*httptest.ResponseRecorder, model.Identity) {
	t.Helper()
	var captured model.Identity
	handler := JWTAuthenticator(cfg, jwks)(identityCapture(&captured))

	req := httptest.NewRequest("POST", "/api/rpc/mail", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, captured
}

func TestJWTAuthenticator_validToken(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwksSrv := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	client := NewJWKSClient(jwksSrv.URL, 1*time.Hour, nil)

	token := signJWT(t, rsaKey, "k1", validClaims())
	w, id := runAuth(t, testIdentityCfg(), client, "Bearer "+token)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}
	if id.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", id.UserID)
	}
	if id.Email != "user@example.test" {
		t.Errorf("Email = %q, want user@example.test", id.Email)
	}
}

func TestJWTAuthenticator_missingHeader(t *testing.T) {
	w, _ := runAuth(t, testIdentityCfg(), nil, "")
	if w.Code != 401 {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthenticator_malformedHeader(t *testing.T) {
	w, _ := runAuth(t, testIdentityCfg(), nil, "Token abc")
	if w.Code != 401 {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthenticator_expiredToken(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwksSrv := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	client := NewJWKSClient(jwksSrv.URL, 1*time.Hour, nil)

	claims := validClaims()
	claims["exp"] = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	token := signJWT(t, rsaKey, "k1", claims)

	w, _ := runAuth(t, testIdentityCfg(), client, "Bearer "+token)
	if w.Code != 401 {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var resp model.ErrorBody
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Message != "Token expired" {
		t.Errorf("message = %q, want Token expired", resp.Message)
	}
}

func TestJWTAuthenticator_wrongAudience(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwksSrv := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	client := NewJWKSClient(jwksSrv.URL, 1*time.Hour, nil)

	claims := validClaims()
	claims["aud"] = "someone-else"
	token := signJWT(t, rsaKey, "k1", claims)

	w, _ := runAuth(t, testIdentityCfg(), client, "Bearer "+token)
	if w.Code != 401 {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuthenticator_missingIdentityClaims(t *testing.T) {
	rsaKey := generateRSAKey(t)
	jwksSrv := startJWKSServer(t, rsaKeyToJWK("k1", &rsaKey.PublicKey))
	client := NewJWKSClient(jwksSrv.URL, 1*time.Hour, nil)

	claims := validClaims()
	delete(claims, "email")
	token := signJWT(t, rsaKey, "k1", claims)

	w, _ := runAuth(t, testIdentityCfg(), client, "Bearer "+token)
	if w.Code != 401 {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var resp model.ErrorBody
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Message != "Token missing required claims" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestStaticAuthenticator(t *testing.T) {
	want := model.Identity{UserID: "dev-1", Email: "dev@example.test"}
	var captured model.Identity
	handler := StaticAuthenticator(want)(identityCapture(&captured))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/rpc/mail", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if captured != want {
		t.Errorf("identity = %+v, want %+v", captured, want)
	}
}
