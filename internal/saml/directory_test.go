package saml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	dir := Directory{
		"urn:swarm:sp": {
			ACSURL: "https://swarm.example.com/login",
		},
		"urn:multi:sp": {
			ACSURLs: []string{"https://a.example.com/acs", "https://b.example.com/acs"},
		},
		"urn:regex:sp": {
			ACSURLRe: `https://dyn\.example\.com/acs/[0-9]+`,
		},
		"urn:wild-*": {
			ACSURL: "https://wild.example.com/acs",
		},
		"urn:empty:sp": {},
	}

	t.Run("single URL compares by equality", func(t *testing.T) {
		assert.True(t, dir.ValidateRequest("urn:swarm:sp", "https://swarm.example.com/login"))
		assert.False(t, dir.ValidateRequest("urn:swarm:sp", "https://swarm.example.com/other"))
	})

	t.Run("URL list compares by membership", func(t *testing.T) {
		assert.True(t, dir.ValidateRequest("urn:multi:sp", "https://b.example.com/acs"))
		assert.False(t, dir.ValidateRequest("urn:multi:sp", "https://c.example.com/acs"))
	})

	t.Run("regular expression tests the recipient", func(t *testing.T) {
		assert.True(t, dir.ValidateRequest("urn:regex:sp", "https://dyn.example.com/acs/42"))
		assert.False(t, dir.ValidateRequest("urn:regex:sp", "https://dyn.example.com/other"))
	})

	t.Run("wildcard keys match by glob", func(t *testing.T) {
		assert.True(t, dir.ValidateRequest("urn:wild-anything", "https://wild.example.com/acs"))
	})

	t.Run("unknown audience yields false", func(t *testing.T) {
		assert.False(t, dir.ValidateRequest("urn:nobody", "https://swarm.example.com/login"))
	})

	t.Run("empty entry yields false", func(t *testing.T) {
		assert.False(t, dir.ValidateRequest("urn:empty:sp", "https://swarm.example.com/login"))
	})

	t.Run("empty arguments yield false", func(t *testing.T) {
		assert.False(t, dir.ValidateRequest("", "https://swarm.example.com/login"))
		assert.False(t, dir.ValidateRequest("urn:swarm:sp", ""))
	})
}

func TestDirectoryExactMatchPrecedence(t *testing.T) {
	dir := Directory{
		"urn:app:*":     {ACSURL: "https://glob.example.com/acs"},
		"urn:app:exact": {ACSURL: "https://exact.example.com/acs"},
	}
	assert.True(t, dir.ValidateRequest("urn:app:exact", "https://exact.example.com/acs"))
	assert.False(t, dir.ValidateRequest("urn:app:exact", "https://glob.example.com/acs"))
}

func TestLoadDirectory(t *testing.T) {
	t.Run("reads entries from a JSON file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "providers.json")
		contents := `{"urn:swarm:sp": {"acsUrl": "https://swarm.example.com/login"}}`
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

		dir, err := LoadDirectory(path)
		require.NoError(t, err)
		assert.True(t, dir.ValidateRequest("urn:swarm:sp", "https://swarm.example.com/login"))
	})

	t.Run("empty path yields a directory that rejects everything", func(t *testing.T) {
		dir, err := LoadDirectory("")
		require.NoError(t, err)
		assert.False(t, dir.ValidateRequest("urn:any", "https://any.example.com"))
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadDirectory("/nonexistent/providers.json")
		require.Error(t, err)
	})
}
