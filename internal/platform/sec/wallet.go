// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

// # Wallet Signature Verification
//
// The login endpoint accepts three signature shapes inside one JSON field:
//
//   - a plain hex string: a recoverable secp256k1 signature over the
//     personal-message envelope of the challenge;
//   - an object with a "prefix" of "APTOS": an ed25519 signature carrying
//     its own public key, verified over the wallet's fullMessage envelope;
//   - an object with a "jwtHeader": an ephemeral-key assertion from a
//     keyless wallet, given a structural check only (see verifyEphemeralJWT).
//
// Verification is fail-closed: any parse or scheme error yields false.

/*
VerifyWalletSignature checks that a signature proves control of an address.

Parameters:
  - address: wallet address the caller claims; compared case-insensitively
    for recoverable schemes.
  - message: the challenge message string that was signed.
  - signature: the raw JSON signature payload in any supported shape.
  - now: the verification instant, passed explicitly for testability.

Returns:
  - bool: true only when the signature is valid for the address and message.
*/
func VerifyWalletSignature(address string, message string, signature json.RawMessage, now time.Time) bool {
	var plain string
	if err := json.Unmarshal(signature, &plain); err == nil {
		return verifyRecoverableSignature(address, message, plain)
	}

	var probe struct {
		JWTHeader string `json:"jwtHeader"`
		Prefix    string `json:"prefix"`
	}
	if err := json.Unmarshal(signature, &probe); err != nil {
		return false
	}
	switch {
	case probe.JWTHeader != "":
		return verifyEphemeralJWT(signature, now)
	case probe.Prefix == "APTOS":
		return verifyRawKeySignature(signature)
	default:
		return false
	}
}

// # Recoverable Scheme

// personalMessageDigest hashes the message inside the standard signed-message
// envelope so the recovered key matches what browser wallets actually sign.
func personalMessageDigest(message string) []byte {
	envelope := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(envelope))
}

func verifyRecoverableSignature(address string, message string, signatureHex string) bool {
	signature, err := hexBytes(signatureHex)
	if err != nil || len(signature) != crypto.SignatureLength {
		return false
	}
	// Wallets emit the legacy 27/28 recovery ID; normalize to 0/1.
	if signature[crypto.RecoveryIDOffset] >= 27 {
		signature[crypto.RecoveryIDOffset] -= 27
	}

	publicKey, err := crypto.SigToPub(personalMessageDigest(message), signature)
	if err != nil {
		return false
	}
	recovered := crypto.PubkeyToAddress(*publicKey)
	return strings.EqualFold(recovered.Hex(), address)
}

// # Raw-Key Scheme

type rawKeySignature struct {
	Prefix      string `json:"prefix"`
	PublicKey   string `json:"publicKey"`
	Signature   string `json:"signature"`
	FullMessage string `json:"fullMessage"`
}

func verifyRawKeySignature(raw json.RawMessage) bool {
	var payload rawKeySignature
	if err := json.Unmarshal(raw, &payload); err != nil {
		return false
	}
	if payload.FullMessage == "" {
		return false
	}

	publicKey, err := keyBytes(payload.PublicKey)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	signature, err := hexBytes(payload.Signature)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, []byte(payload.FullMessage), signature)
}

// # Ephemeral-JWT Scheme

type ephemeralJWTSignature struct {
	JWTHeader          string          `json:"jwtHeader"`
	ExpiryDateSecs     int64           `json:"expiryDateSecs"`
	EphemeralPublicKey json.RawMessage `json:"ephemeralPublicKey"`
	EphemeralSignature json.RawMessage `json:"ephemeralSignature"`
}

// verifyEphemeralJWT performs a structural check of a keyless-wallet
// assertion: the JWT header must declare RS256, the ephemeral key and
// signature must be present, and the assertion must not be expired.
//
// The RSA signature itself is NOT verified against the provider JWKS here,
// so this scheme proves freshness and shape, not key possession. Treat it
// as a weaker factor until JWKS verification lands.
func verifyEphemeralJWT(raw json.RawMessage, now time.Time) bool {
	var payload ephemeralJWTSignature
	if err := json.Unmarshal(raw, &payload); err != nil {
		return false
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(payload.JWTHeader, "="))
	if err != nil {
		return false
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Alg != "RS256" {
		return false
	}

	if len(embeddedBytes(payload.EphemeralPublicKey)) == 0 {
		return false
	}
	if len(embeddedBytes(payload.EphemeralSignature)) == 0 {
		return false
	}
	return payload.ExpiryDateSecs > now.Unix()
}

// embeddedBytes extracts a byte payload from the serialized wallet SDK
// structures, which nest the bytes either as an array or as an object keyed
// by decimal indices ({"0": 12, "1": 255, ...}), possibly under "data".
func embeddedBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}

	var asArray []byte
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asObject); err != nil || len(asObject) == 0 {
		return nil
	}
	if nested, ok := asObject["data"]; ok {
		return embeddedBytes(nested)
	}

	buffer := make([]byte, len(asObject))
	for key, value := range asObject {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= len(buffer) {
			// Not an indexed byte map; recurse into the first nested
			// structure that yields bytes.
			for _, candidate := range asObject {
				if bytes := embeddedBytes(candidate); len(bytes) > 0 {
					return bytes
				}
			}
			return nil
		}
		var octet uint8
		if err := json.Unmarshal(value, &octet); err != nil {
			return nil
		}
		buffer[index] = octet
	}
	return buffer
}

// # Encoding Helpers

func hexBytes(value string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(value, "0x"))
}

// keyBytes decodes a public key given as 0x-hex, bare hex or base58.
func keyBytes(value string) ([]byte, error) {
	if decoded, err := hexBytes(value); err == nil {
		return decoded, nil
	}
	return base58.Decode(value)
}
