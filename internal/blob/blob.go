// Package blob stores raw upload bytes behind opaque keys.
//
// Two backends are provided: Local for a filesystem directory and S3 for any
// S3-compatible object store. Both treat deleting a missing key as success so
// release retries are idempotent.
package blob

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Open when no blob exists under the key.
var ErrNotFound = errors.New("blob not found")

// validateKey rejects keys that could escape the store's namespace.
func validateKey(key string) error {
	if key == "" {
		return errors.New("blob key is empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("blob key %q must be a relative slash-separated path", key)
	}
	if path.Clean(key) != key || strings.HasPrefix(key, "../") || key == ".." {
		return fmt.Errorf("blob key %q is not canonical", key)
	}
	return nil
}
