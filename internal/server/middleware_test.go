package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kioku/internal/auth"
	"github.com/ashita-ai/kioku/internal/ctxutil"
	"github.com/ashita-ai/kioku/internal/model"
	"github.com/ashita-ai/kioku/internal/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxutil.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err, "generated request ID should be a UUID")
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "client-supplied", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 500))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, strings.Repeat("x", 500), seen, "oversized request IDs are replaced")
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	securityHeadersMiddleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(testutil.TestLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var apiErr model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	assert.Equal(t, model.ErrCodeInternalError, apiErr.Error.Code)
}

func TestAuthMiddleware(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	member := model.Member{ID: uuid.New(), ProjectID: uuid.New(), Name: "alice", Role: model.RoleEditor}
	token, _, err := mgr.IssueToken(member)
	require.NoError(t, err)

	var got *auth.Claims
	handler := authMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := ctxutil.ClaimsFromContext(r.Context()); c != nil {
			got = c
			assert.Equal(t, member.ProjectID, ctxutil.ProjectIDFromContext(r.Context()))
		}
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"public health", "/health", "", http.StatusOK},
		{"public token", "/auth/token", "", http.StatusOK},
		{"missing header", "/v1/facts", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/facts", "Basic abc", http.StatusUnauthorized},
		{"bad token", "/v1/facts", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "/v1/facts", "bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.MemberName)
}

func TestRequireRole(t *testing.T) {
	handler := requireRole(model.RoleEditor)(okHandler())

	tests := []struct {
		role model.Role
		want int
	}{
		{model.RoleViewer, http.StatusForbidden},
		{model.RoleEditor, http.StatusOK},
		{model.RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/v1/facts", nil)
		req = req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{Role: tt.role, ProjectID: uuid.New()}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "role %s", tt.role)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/facts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusWriterRecordsFirstStatusAndClaims(t *testing.T) {
	inner := &statusWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	outer := &statusWriter{ResponseWriter: inner, statusCode: http.StatusOK}

	claims := &auth.Claims{MemberName: "bob"}
	recordClaims(outer, claims)
	assert.Same(t, claims, outer.claims)
	assert.Same(t, claims, inner.claims)

	outer.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, outer.statusCode)
	assert.Equal(t, http.StatusTeapot, inner.statusCode)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name     string
		payload  string
		optional bool
		wantErr  bool
		wantCode int
	}{
		{"valid", `{"name":"x"}`, false, false, 0},
		{"unknown field", `{"name":"x","extra":1}`, false, true, http.StatusBadRequest},
		{"empty required", ``, false, true, http.StatusBadRequest},
		{"empty optional", ``, true, false, 0},
		{"too large", `{"name":"` + strings.Repeat("a", 200) + `"}`, false, true, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			if tt.payload == "" {
				req.Body = http.NoBody
			}
			rec := httptest.NewRecorder()
			var b body
			err := decodeJSON(rec, req, &b, 64, tt.optional)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			handleDecodeError(rec, req, err)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestMemberKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/facts", nil)
	assert.Empty(t, memberKeyFunc(req), "no claims")

	projectID := uuid.New()
	editor := req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{MemberName: "e", ProjectID: projectID, Role: model.RoleEditor}))
	assert.Equal(t, projectID.String()+":e", memberKeyFunc(editor))

	admin := req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{MemberName: "a", ProjectID: projectID, Role: model.RoleAdmin}))
	assert.Empty(t, memberKeyFunc(admin), "admins are exempt")
}

func TestValidateTemplateKey(t *testing.T) {
	assert.NoError(t, validateTemplateKey("fact_check_conflicts"))
	assert.Error(t, validateTemplateKey(""))
	assert.Error(t, validateTemplateKey("Upper"))
	assert.Error(t, validateTemplateKey("has space"))
	assert.Error(t, validateTemplateKey(strings.Repeat("a", 129)))
}
