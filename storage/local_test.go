package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/config"
)

func TestObjectKey(t *testing.T) {
	cases := map[string]string{
		"report.pdf":        "m1/report.pdf",
		"../../etc/passwd":  "m1/passwd",
		`C:\Users\me\a.txt`: "m1/a.txt",
		"dir/":              "m1/dir",
	}
	for name, want := range cases {
		key, err := ObjectKey("m1", name)
		require.NoError(t, err, name)
		assert.Equal(t, want, key, name)
	}
}

func TestObjectKeyRejectsEmptyNames(t *testing.T) {
	for _, name := range []string{"", " ", ".", "..", "/", `\`} {
		_, err := ObjectKey("m1", name)
		assert.ErrorIs(t, err, ErrInvalidKey, "%q", name)
	}
	_, err := ObjectKey("", "a.txt")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ObjectKey("m1/m2", "a.txt")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalBucketUploadAndDelete(t *testing.T) {
	root := t.TempDir()
	b, err := NewLocalBucket(root, "http://localhost:8080/files/")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "m1/a.txt", strings.NewReader("hello"), "text/plain"))
	data, err := os.ReadFile(filepath.Join(root, "m1", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "http://localhost:8080/files/m1/a.txt", b.PublicURL("m1/a.txt"))

	require.NoError(t, b.DeletePrefix(ctx, "m1"))
	_, err = os.Stat(filepath.Join(root, "m1"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalBucketRejectsEscapingKeys(t *testing.T) {
	b, err := NewLocalBucket(t.TempDir(), "http://x")
	require.NoError(t, err)

	err = b.Upload(context.Background(), "../outside.txt", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, b.DeletePrefix(context.Background(), ""), ErrInvalidKey)
}

func TestNewSelectsLocal(t *testing.T) {
	b, err := New(context.Background(), config.Storage{Mode: "local", LocalDir: t.TempDir(), PublicBaseURL: "http://x"})
	require.NoError(t, err)
	assert.IsType(t, &LocalBucket{}, b)

	_, err = New(context.Background(), config.Storage{Mode: "s3"})
	assert.Error(t, err)
}
