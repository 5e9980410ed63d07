package cache

import (
	"fmt"
)

// GenerateKeyWithParams creates a cache key with multiple parameters.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key = fmt.Sprintf("%s:%v", key, param)
	}
	return key
}

// BuildPattern matches every key ending in the given parameters under prefix, whatever sits between.
func BuildPattern(prefix string, params ...interface{}) string {
	return GenerateKeyWithParams(prefix+":*", params...)
}
