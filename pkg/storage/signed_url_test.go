package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expires, err := signer.Generate("pay-1", "proofs/pay-1.png")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	paymentID, relPath, _, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "pay-1", paymentID)
	assert.Equal(t, "proofs/pay-1.png", relPath)
}

func TestSignedURLTampered(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("pay-1", "proofs/pay-1.png")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "x")
	assert.Error(t, err)
}

func TestSignedURLExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", -time.Minute)
	signer.ttl = -time.Minute
	token, _, err := signer.Generate("pay-1", "proofs/pay-1.png")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	assert.Error(t, err)
}
