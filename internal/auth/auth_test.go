package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-key"
	testIssuer = "edutrack"
)

func TestProofRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	sig, err := SignProof(testKey, testIssuer, "sess_1", "st_1", "12345678", at)
	require.NoError(t, err)

	claims, err := VerifyProof(sig, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "sess_1", claims.SessionID)
	assert.Equal(t, "st_1", claims.StudentID)
	assert.Equal(t, "12345678", claims.SessionCode)
	assert.True(t, claims.IssuedAt.Equal(at))

	t.Run("WrongKey", func(t *testing.T) {
		_, err := VerifyProof(sig, "other", testIssuer)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		_, err := VerifyProof(sig, testKey, "someone-else")
		assert.ErrorIs(t, err, ErrIssuerMismatch)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := VerifyProof("not-a-token", testKey, testIssuer)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue("lecturer@uni.edu", testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := Parse(token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, RoleInstructor, claims.Role)
	assert.Equal(t, "lecturer@uni.edu", claims.Subject)

	expired, _, err := Issue("x", testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, testKey, testIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireInstructor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", RequireInstructor(testKey, testIssuer), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(Claims)
		c.String(http.StatusOK, claims.Subject)
	})

	token, _, err := Issue("lecturer", testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"Missing", "", http.StatusUnauthorized},
		{"NotBearer", "Basic abc", http.StatusUnauthorized},
		{"Invalid", "Bearer nope", http.StatusUnauthorized},
		{"Valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "lecturer", w.Body.String())
			}
		})
	}
}
