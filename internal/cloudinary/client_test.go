package cloudinary

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{"timestamp": "1700000000", "folder": "faces/st_1", "api_key": "key", "empty": ""})

	sum := sha1.Sum([]byte("folder=faces/st_1&timestamp=1700000000secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestUploadFace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "faces/st_1", r.FormValue("folder"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		assert.NotEmpty(t, r.FormValue("signature"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "ada.jpg", hdr.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), data)

		json.NewEncoder(w).Encode(UploadResult{PublicID: "faces/st_1/ada", SecureURL: "https://res.cloudinary.com/demo/ada.jpg"})
	}))
	defer server.Close()

	c := New("demo", "key", "secret", "faces")
	c.APIBase = server.URL
	c.Now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.UploadFace(context.Background(), "st_1", []byte("jpeg-bytes"), "ada.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/ada.jpg", res.SecureURL)

	t.Run("Rejected", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
		}))
		defer bad.Close()

		c.APIBase = bad.URL
		_, err := c.UploadFace(context.Background(), "st_1", []byte("x"), "x.jpg")
		assert.ErrorContains(t, err, "Invalid Signature")
	})
}
