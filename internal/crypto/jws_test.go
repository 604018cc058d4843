package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rsaKeyPair(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return privPEM, pubPEM
}

func TestSignVerifyRoundTrip(t *testing.T) {
	privPEM, pubPEM := rsaKeyPair(t)
	payload := []byte(`{"summary":{"isValid":true}}`)

	j, err := SignJWS(payload, privPEM, "gate-1")
	require.NoError(t, err)
	got, err := VerifyJWS(j, pubPEM)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	tampered := j
	tampered.Payload = j.Payload[:len(j.Payload)-2] + "AA"
	_, err = VerifyJWS(tampered, pubPEM)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	_, otherPub := rsaKeyPair(t)
	_, err = VerifyJWS(j, otherPub)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestKeyParsing(t *testing.T) {
	_, err := SignJWS([]byte("x"), []byte("not pem"), "")
	assert.ErrorIs(t, err, ErrNoPEM)

	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(ec)
	require.NoError(t, err)
	_, err = SignJWS([]byte("x"), pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), "")
	assert.ErrorIs(t, err, ErrNotRSA)
}
