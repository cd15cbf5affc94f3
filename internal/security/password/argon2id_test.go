package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundtrip(t *testing.T) {
	phc, err := Hash(Default, "secreto-del-client")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(phc, "$argon2id$"))

	assert.True(t, Verify("secreto-del-client", phc))
	assert.False(t, Verify("otro-secreto", phc))
}

func TestHashSalDistinta(t *testing.T) {
	a, err := Hash(Default, "x")
	require.NoError(t, err)
	b, err := Hash(Default, "x")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPHCMalformado(t *testing.T) {
	assert.False(t, Verify("x", ""))
	assert.False(t, Verify("x", "$argon2id$basura"))
	assert.False(t, Verify("x", "plaintext"))
}
