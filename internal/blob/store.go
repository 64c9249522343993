// Package blob stores uploaded media and hands back public URLs.
package blob

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrForeignURL is returned by Delete for URLs this store did not issue.
var ErrForeignURL = errors.New("blob: url not owned by this store")

// Object is a payload to upload. Prefix groups objects ("avatars", "posts").
type Object struct {
	Prefix      string
	Ext         string
	ContentType string
	Data        []byte
}

// Store uploads bytes and returns a public URL; Delete takes such a URL.
type Store interface {
	Upload(ctx context.Context, obj Object) (string, error)
	Delete(ctx context.Context, url string) error
}

// objectKey builds a collision-free key such as "avatars/3f0c...e1.webp".
func objectKey(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := uuid.NewString() + ext
	if prefix == "" {
		return name
	}
	return path.Join(strings.Trim(prefix, "/"), name)
}

// keyFromURL strips base from url, rejecting URLs outside base and keys that
// would escape it.
func keyFromURL(base, url string) (string, error) {
	base = strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, base) {
		return "", ErrForeignURL
	}
	key := strings.TrimPrefix(url, base)
	if key == "" || strings.Contains(key, "..") {
		return "", ErrForeignURL
	}
	return key, nil
}
