package logging

import (
	"strings"

	"go.uber.org/zap"
)

// Redacted replaces secret values in log output
const Redacted = "[REDACTED]"

var secretKeys = map[string]bool{
	"private_key": true, "privatekey": true, "secret": true, "password": true,
	"api_key": true, "apikey": true, "mnemonic": true, "authorization": true,
}

var secretSuffixes = []string{"_private_key", "_secret", "_password", "_api_key", "_bot_token", "_access_token"}

// isSecretKey reports whether a field name denotes key material or a credential. Coin fields
// such as "token" and "token_out" are not credentials.
func isSecretKey(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	if secretKeys[k] || k == "bot_token" || k == "access_token" {
		return true
	}
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}

// field builds a zap field, masking credentials by name and Bech32 Sui private keys by value
func field(key string, value interface{}) zap.Field {
	if isSecretKey(key) {
		return zap.String(key, Redacted)
	}
	if s, ok := value.(string); ok && strings.HasPrefix(s, "suiprivkey1") {
		return zap.String(key, Redacted)
	}
	return zap.Any(key, value)
}
