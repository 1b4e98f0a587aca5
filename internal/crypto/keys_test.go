package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSealOpenRoundTrip(t *testing.T) {
	blob, err := Seal("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := Open(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestOpenWrongPassword(t *testing.T) {
	blob, err := Seal(testKeyHex, "correct")
	require.NoError(t, err)

	_, err = Open(blob, "wrong")
	assert.Error(t, err)
}

func TestSealValidatesInput(t *testing.T) {
	_, err := Seal(testKeyHex, "")
	assert.Error(t, err)

	_, err = Seal("zzzz", "pw")
	assert.Error(t, err)

	_, err = Seal(strings.Repeat("ab", 16)+"ff", "pw") // 33 bytes
	assert.Error(t, err)
}

func TestResolveRawWinsOverFile(t *testing.T) {
	got, err := Resolve(Source{Raw: "0x" + testKeyHex, File: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestResolveFromFile(t *testing.T) {
	blob, err := Seal(testKeyHex, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := Resolve(Source{File: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestResolveNoSource(t *testing.T) {
	_, err := Resolve(Source{})
	assert.Error(t, err)
}
