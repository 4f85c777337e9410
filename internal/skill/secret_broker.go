package skill

import (
	"fmt"
	"os"
)

// GetSecret reads a credential from the environment at call time. No
// caching — every call re-reads os.Environ so a rotated secret is picked up
// without a process restart. Skills must call this from inside Execute, not
// Validate or construction, so a secret value is only ever read when a call
// has already cleared rate-limit, validation, and approval gates.
func GetSecret(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("secret %q is not configured: set the %s environment variable", key, key)
	}
	return value, nil
}
