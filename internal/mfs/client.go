package mfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	gopath "path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"go.uber.org/zap"

	"github.com/peerdav/peerdav/internal/logging"
	"github.com/peerdav/peerdav/internal/metrics"
	"github.com/peerdav/peerdav/internal/retry"
)

// Client implements API against a kubo daemon's /api/v0/files endpoints.
// Transport-level failures are retried with backoff here; errors returned to
// callers are already mapped onto the package taxonomy.
type Client struct {
	sh    *shell.Shell
	retry retry.Config
}

var _ API = (*Client)(nil)

// NewClient creates a client for the daemon at apiAddr (multiaddr or
// host:port form, e.g. "localhost:5001").
func NewClient(apiAddr string, timeout time.Duration) *Client {
	sh := shell.NewShell(apiAddr)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}
	return &Client{
		sh:    sh,
		retry: retry.DefaultConfig(),
	}
}

// Up reports whether the daemon answers at all. Used as a startup gate;
// steady-state reachability problems surface per-request instead.
func (c *Client) Up() bool {
	return c.sh.IsUp()
}

func (c *Client) Stat(ctx context.Context, path string) (Entry, error) {
	stat, err := doRPC(ctx, c, "stat", func() (*shell.FilesStatObject, error) {
		return c.sh.FilesStat(ctx, path)
	})
	if err != nil {
		return Entry{}, err
	}

	dir, err := isDirType(stat.Type)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Path: path,
		Name: entryName(path),
		Dir:  dir,
		Size: stat.Size,
	}, nil
}

func (c *Client) List(ctx context.Context, path string) ([]Entry, error) {
	raw, err := doRPC(ctx, c, "ls", func() ([]*shell.MfsLsEntry, error) {
		return c.sh.FilesLs(ctx, path, shell.FilesLs.Stat(true))
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, Entry{
			Path: gopath.Join(path, e.Name),
			Name: e.Name,
			Dir:  e.Type == 1,
			Size: e.Size,
		})
	}
	return entries, nil
}

func (c *Client) ReadAll(ctx context.Context, path string) ([]byte, error) {
	data, err := doRPC(ctx, c, "read", func() ([]byte, error) {
		rc, err := c.sh.FilesRead(ctx, path)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordBytesRead(int64(len(data)))
	return data, nil
}

func (c *Client) WriteAll(ctx context.Context, path string, data []byte) error {
	err := c.do(ctx, "write", func() error {
		return c.sh.FilesWrite(ctx, path, bytes.NewReader(data),
			shell.FilesWrite.Create(true),
			shell.FilesWrite.Truncate(true),
		)
	})
	if err != nil {
		return err
	}
	metrics.RecordBytesWritten(int64(len(data)))
	logging.Debug("mfs write", zap.String("path", path), zap.Int("size", len(data)))
	return nil
}

func (c *Client) Mkdir(ctx context.Context, path string) error {
	return c.do(ctx, "mkdir", func() error {
		return c.sh.FilesMkdir(ctx, path)
	})
}

func (c *Client) Remove(ctx context.Context, path string) error {
	return c.do(ctx, "rm", func() error {
		return c.sh.FilesRm(ctx, path, true)
	})
}

func (c *Client) Move(ctx context.Context, src, dest string) error {
	return c.do(ctx, "mv", func() error {
		return c.sh.FilesMv(ctx, src, dest)
	})
}

func (c *Client) Copy(ctx context.Context, src, dest string) error {
	return c.do(ctx, "cp", func() error {
		return c.sh.FilesCp(ctx, src, dest)
	})
}

func (c *Client) Flush(ctx context.Context, path string) error {
	return c.do(ctx, "flush", func() error {
		// The daemon answers with the flushed root CID; nothing here
		// needs it.
		_, err := c.sh.FilesFlush(ctx, path)
		return err
	})
}

// do runs one RPC operation with transport-level retries and records its
// outcome. Application errors from the daemon are never retried.
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := retry.Do(ctx, c.retry, func() error {
		err := fn()
		if err != nil && !isDaemonError(err) {
			return retry.Retryable(err)
		}
		return err
	})
	metrics.RecordRPCOperation(op, time.Since(start), err == nil)
	if err != nil {
		return mapError(op, err)
	}
	return nil
}

// doRPC is do for operations that carry a result.
func doRPC[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	res, err := retry.DoWithResult(ctx, c.retry, func() (T, error) {
		r, err := fn()
		if err != nil && !isDaemonError(err) {
			return r, retry.Retryable(err)
		}
		return r, err
	})
	metrics.RecordRPCOperation(op, time.Since(start), err == nil)
	if err != nil {
		return res, mapError(op, err)
	}
	return res, nil
}

// isDaemonError reports whether the daemon itself answered with an error, as
// opposed to the request not completing at all.
func isDaemonError(err error) bool {
	var apiErr *shell.Error
	return errors.As(err, &apiErr)
}

// mapError translates RPC failures onto the package taxonomy. The daemon
// reports application errors as messages, so classification is by message
// content; anything the daemon never answered is a transient transport
// failure.
func mapError(op string, err error) error {
	var apiErr *shell.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		switch {
		case strings.Contains(msg, "does not exist"):
			return fmt.Errorf("%w: files/%s: %s", ErrNotFound, op, msg)
		case strings.Contains(msg, "already exists"),
			strings.Contains(msg, "already has entry"):
			return fmt.Errorf("%w: files/%s: %s", ErrExists, op, msg)
		case strings.Contains(msg, "not a directory"),
			strings.Contains(msg, "invalid path"):
			return fmt.Errorf("%w: files/%s: %s", ErrInvalidPath, op, msg)
		default:
			return fmt.Errorf("%w: files/%s: %s", ErrInternal, op, msg)
		}
	}
	return fmt.Errorf("%w: files/%s: %v", ErrRemoteUnavailable, op, err)
}

func isDirType(typ string) (bool, error) {
	switch typ {
	case "directory":
		return true, nil
	case "file":
		return false, nil
	default:
		return false, fmt.Errorf("%w: unrecognized entry type %q", ErrInternal, typ)
	}
}

func entryName(path string) string {
	name := gopath.Base(path)
	if name == "." || name == "" {
		return "/"
	}
	return name
}
