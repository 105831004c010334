package mfs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolve canonicalizes a client-supplied path and anchors it under root,
// the MFS namespace the server is confined to. It is a pure function.
//
// Rules: any ".." segment is rejected outright (no escaping the root, not
// even "a/../b" which would stay inside it), repeated separators collapse,
// and trailing separators are stripped except for the root itself.
func Resolve(root, name string) (string, error) {
	var segs []string
	for _, seg := range strings.Split(name, "/") {
		switch seg {
		case "", ".":
			// collapsed
		case "..":
			return "", fmt.Errorf("%w: %q contains a parent segment", ErrInvalidPath, name)
		default:
			segs = append(segs, seg)
		}
	}

	root = strings.TrimSuffix(root, "/")
	if root == "" {
		root = "/"
	}
	if len(segs) == 0 {
		return root, nil
	}
	if root == "/" {
		return "/" + strings.Join(segs, "/"), nil
	}
	return root + "/" + strings.Join(segs, "/"), nil
}

// EnsurePath creates the directory at path plus any missing parents. A
// directory that already exists counts as success.
func EnsurePath(ctx context.Context, api API, path string) error {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	cur := ""
	for _, seg := range strings.Split(path, "/") {
		cur += "/" + seg
		if err := api.Mkdir(ctx, cur); err != nil && !errors.Is(err, ErrExists) {
			return err
		}
	}
	return nil
}
