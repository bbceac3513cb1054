package signature

import "crypto/rand"

// SecretPrefix starts every generated signing secret.
const SecretPrefix = "whsec_"

// GenerateSecret returns a new random signing secret: SecretPrefix followed
// by 26 base32 characters carrying 128 bits of randomness.
func GenerateSecret() string {
	return SecretPrefix + rand.Text()
}
