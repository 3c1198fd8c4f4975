// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ctap2Encoder emits CTAP2 canonical CBOR so the COSE key encoding is
// stable for identical input.
var ctap2Encoder cbor.EncMode

func init() {
	var err error
	ctap2Encoder, err = cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// coseEC2Key is a COSE_Key for an EC2 P-256/ES256 public key. The
// keyasint tags produce the fixed COSE label ordering 1, 3, -1, -2, -3.
type coseEC2Key struct {
	KeyType   int    `cbor:"1,keyasint"`
	Algorithm int    `cbor:"3,keyasint"`
	Curve     int    `cbor:"-1,keyasint"`
	X         []byte `cbor:"-2,keyasint"`
	Y         []byte `cbor:"-3,keyasint"`
}

const (
	coseKeyTypeEC2   = 2
	coseAlgES256     = -7
	coseCurveP256    = 1
	rawECPointLength = 64
)

// RawKeyToCOSE converts a raw EC P-256 public key to its canonical
// COSE_Key encoding. The input is either the bare 64-byte x||y point or
// the 65-byte uncompressed form with a leading 0x04 marker.
func RawKeyToCOSE(raw []byte) ([]byte, error) {
	point := raw
	switch {
	case len(raw) == rawECPointLength:
	case len(raw) == rawECPointLength+1 && raw[0] == 0x04:
		point = raw[1:]
	default:
		var leading byte
		if len(raw) > 0 {
			leading = raw[0]
		}
		return nil, fmt.Errorf("raw key must be 64 bytes long, or 65 bytes long and start with 0x04, was %d bytes starting with %02x", len(raw), leading)
	}

	key := coseEC2Key{
		KeyType:   coseKeyTypeEC2,
		Algorithm: coseAlgES256,
		Curve:     coseCurveP256,
		X:         point[:32],
		Y:         point[32:],
	}
	encoded, err := ctap2Encoder.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("encoding COSE key: %w", err)
	}
	return encoded, nil
}

// u2fClientData is the subset of the legacy client data needed for
// challenge comparison.
type u2fClientData struct {
	Challenge string `json:"challenge"`
}

// verifyU2FRegistration checks a legacy U2F registration response
// against the pending ceremony: the client data's challenge must equal
// the issued one, and the registration data signature must verify under
// the attestation certificate.
//
// The attestation blob is the DER certificate directly followed by the
// raw signature; the split point is the end of the DER structure.
func verifyU2FRegistration(appID string, pending *RegistrationRequest, response *U2FCredentialResponse) error {
	u2f := response

	var clientData u2fClientData
	if err := json.Unmarshal(u2f.ClientDataJSON, &clientData); err != nil {
		return fmt.Errorf("decoding client data: %w", err)
	}

	issued := pending.CreationOptions.PublicKey.Response.Challenge.String()
	if clientData.Challenge != issued {
		return fmt.Errorf("challenge mismatch")
	}

	cert, signature, err := splitCertAndSignature(u2f.AttestationCertAndSignature)
	if err != nil {
		return err
	}

	appIDHash := sha256.Sum256([]byte(appID))
	clientDataHash := sha256.Sum256(u2f.ClientDataJSON)

	// U2F registration data: 0x00 || appIdHash || clientDataHash ||
	// keyHandle || publicKey
	signed := make([]byte, 0, 1+32+32+len(u2f.KeyHandle)+len(u2f.PublicKey))
	signed = append(signed, 0x00)
	signed = append(signed, appIDHash[:]...)
	signed = append(signed, clientDataHash[:]...)
	signed = append(signed, u2f.KeyHandle...)
	signed = append(signed, u2f.PublicKey...)

	if err := cert.CheckSignature(x509.ECDSAWithSHA256, signed, signature); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	return nil
}

// splitCertAndSignature parses the outer DER TLV of the attestation
// certificate to find where it ends; the remaining bytes are the raw
// signature.
func splitCertAndSignature(blob []byte) (*x509.Certificate, []byte, error) {
	certLen, err := derStructureLength(blob)
	if err != nil {
		return nil, nil, err
	}
	if certLen >= len(blob) {
		return nil, nil, fmt.Errorf("attestation blob has no signature after certificate")
	}
	cert, err := x509.ParseCertificate(blob[:certLen])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing attestation certificate: %w", err)
	}
	return cert, blob[certLen:], nil
}

// derStructureLength returns the total encoded length of the DER
// structure at the start of data.
func derStructureLength(data []byte) (int, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("attestation blob too short")
	}
	lengthByte := data[1]
	if lengthByte < 0x80 {
		return 2 + int(lengthByte), nil
	}
	numBytes := int(lengthByte & 0x7f)
	if numBytes == 0 || numBytes > 4 || len(data) < 2+numBytes {
		return 0, fmt.Errorf("malformed DER length")
	}
	length := 0
	for _, b := range data[2 : 2+numBytes] {
		length = length<<8 | int(b)
	}
	return 2 + numBytes + length, nil
}
