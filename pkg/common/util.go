package common

import (
	"os"
)

// GetEnv returns an environment variable's value, or the default when unset
func GetEnv(env string, defaultValue string) string {
	val, ok := os.LookupEnv(env)
	if !ok {
		return defaultValue
	}
	return val
}
