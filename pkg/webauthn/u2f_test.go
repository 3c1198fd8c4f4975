// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseU2FPoint decodes the canonical COSE encoding back into the raw
// 64-byte x||y point.
func parseU2FPoint(coseKey []byte) ([]byte, error) {
	var key coseEC2Key
	if err := cbor.Unmarshal(coseKey, &key); err != nil {
		return nil, fmt.Errorf("decoding COSE key: %w", err)
	}
	if len(key.X) != 32 || len(key.Y) != 32 {
		return nil, fmt.Errorf("COSE key coordinates must be 32 bytes")
	}
	return append(append([]byte{}, key.X...), key.Y...), nil
}

func TestRawKeyToCOSERoundTrip(t *testing.T) {
	point := make([]byte, 64)
	_, err := rand.Read(point)
	require.NoError(t, err)

	for name, input := range map[string][]byte{
		"bare point":   point,
		"uncompressed": append([]byte{0x04}, point...),
	} {
		t.Run(name, func(t *testing.T) {
			cose, err := RawKeyToCOSE(input)
			require.NoError(t, err)

			recovered, err := parseU2FPoint(cose)
			require.NoError(t, err)
			assert.Equal(t, point, recovered)
		})
	}
}

func TestRawKeyToCOSEDeterministic(t *testing.T) {
	point := make([]byte, 64)
	_, err := rand.Read(point)
	require.NoError(t, err)

	first, err := RawKeyToCOSE(point)
	require.NoError(t, err)
	second, err := RawKeyToCOSE(point)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRawKeyToCOSEInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"too short", make([]byte, 63)},
		{"too long", make([]byte, 66)},
		{"empty", nil},
		{"65 bytes without marker", append([]byte{0x05}, make([]byte, 64)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RawKeyToCOSE(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), fmt.Sprintf("was %d bytes", len(tt.input)))
		})
	}
}

func TestRawKeyToCOSEErrorNamesLeadingByte(t *testing.T) {
	input := append([]byte{0x05}, make([]byte, 64)...)
	_, err := RawKeyToCOSE(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "65")
	assert.Contains(t, err.Error(), "05")
}

// u2fFixture holds the pieces of a synthetic U2F registration response.
type u2fFixture struct {
	appID    string
	request  *RegistrationRequest
	response U2FCredentialResponse
}

func newU2FFixture(t *testing.T, challenge []byte) *u2fFixture {
	t.Helper()

	attestationKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "U2F Test Attestation"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &attestationKey.PublicKey, attestationKey)
	require.NoError(t, err)

	deviceKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	devicePublic := elliptic.Marshal(elliptic.P256(), deviceKey.PublicKey.X, deviceKey.PublicKey.Y)

	appID := "https://localhost:8443"
	keyHandle := []byte("test-key-handle")
	clientData, err := json.Marshal(map[string]string{
		"challenge": base64.RawURLEncoding.EncodeToString(challenge),
		"origin":    appID,
		"type":      "navigator.id.finishEnrollment",
	})
	require.NoError(t, err)

	appIDHash := sha256.Sum256([]byte(appID))
	clientDataHash := sha256.Sum256(clientData)
	signed := append([]byte{0x00}, appIDHash[:]...)
	signed = append(signed, clientDataHash[:]...)
	signed = append(signed, keyHandle...)
	signed = append(signed, devicePublic...)

	digest := sha256.Sum256(signed)
	signature, err := ecdsa.SignASN1(rand.Reader, attestationKey, digest[:])
	require.NoError(t, err)

	request := &RegistrationRequest{
		Username: "alice",
		CreationOptions: &CreationOptions{
			User: UserIdentity{Name: "alice", DisplayName: "Alice", ID: []byte("handle-alice")},
			PublicKey: &protocol.CredentialCreation{
				Response: protocol.PublicKeyCredentialCreationOptions{
					Challenge: challenge,
				},
			},
		},
	}

	return &u2fFixture{
		appID:   appID,
		request: request,
		response: U2FCredentialResponse{
			KeyHandle:                   keyHandle,
			PublicKey:                   devicePublic,
			AttestationCertAndSignature: append(certDER, signature...),
			ClientDataJSON:              clientData,
		},
	}
}

func TestVerifyU2FRegistration(t *testing.T) {
	challenge := make([]byte, 32)
	_, err := rand.Read(challenge)
	require.NoError(t, err)

	f := newU2FFixture(t, challenge)
	assert.NoError(t, verifyU2FRegistration(f.appID, f.request, &f.response))
}

func TestVerifyU2FRegistrationChallengeMismatch(t *testing.T) {
	challenge := make([]byte, 32)
	_, err := rand.Read(challenge)
	require.NoError(t, err)

	f := newU2FFixture(t, challenge)
	f.request.CreationOptions.PublicKey.Response.Challenge = []byte("some other challenge............")

	err = verifyU2FRegistration(f.appID, f.request, &f.response)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "challenge mismatch")
}

func TestVerifyU2FRegistrationWrongAppID(t *testing.T) {
	challenge := make([]byte, 32)
	_, err := rand.Read(challenge)
	require.NoError(t, err)

	f := newU2FFixture(t, challenge)
	assert.Error(t, verifyU2FRegistration("https://evil.example.org", f.request, &f.response))
}

func TestVerifyU2FRegistrationTamperedKey(t *testing.T) {
	challenge := make([]byte, 32)
	_, err := rand.Read(challenge)
	require.NoError(t, err)

	f := newU2FFixture(t, challenge)
	f.response.PublicKey[10] ^= 0xff

	assert.Error(t, verifyU2FRegistration(f.appID, f.request, &f.response))
}

func TestVerifyU2FRegistrationTruncatedBlob(t *testing.T) {
	challenge := make([]byte, 32)
	_, err := rand.Read(challenge)
	require.NoError(t, err)

	f := newU2FFixture(t, challenge)
	f.response.AttestationCertAndSignature = f.response.AttestationCertAndSignature[:1]

	assert.Error(t, verifyU2FRegistration(f.appID, f.request, &f.response))
}

func TestSplitCertAndSignature(t *testing.T) {
	challenge := make([]byte, 32)
	_, err := rand.Read(challenge)
	require.NoError(t, err)

	f := newU2FFixture(t, challenge)
	cert, signature, err := splitCertAndSignature(f.response.AttestationCertAndSignature)
	require.NoError(t, err)
	assert.Equal(t, "U2F Test Attestation", cert.Subject.CommonName)
	assert.NotEmpty(t, signature)

	// A blob holding only the certificate has no signature to split off.
	_, _, err = splitCertAndSignature(cert.Raw)
	assert.Error(t, err)
}
