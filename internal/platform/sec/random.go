// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

/*
GenerateSecureToken produces a cryptographically random hex string.

Parameters:
  - byteLength: number of random bytes to draw; the resulting string is twice as long.

Returns:
  - string: the hex-encoded token.
  - error: when the system entropy source fails.
*/
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec_random_read_failed: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}
