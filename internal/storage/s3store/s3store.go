// Package s3store implements the object-store leaf backend named in
// spec §1: one metatile per object key, using aws-sdk-go's s3iface.S3API
// so the backend can be exercised in tests against a fake client with
// no network or credentials. It is grounded on the put/get shape shown
// in the ctile and tapalcatl_server reference files (PutObjectInput /
// GetObjectInput against a bucket + key, NoSuchKey mapped to a miss).
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/metatile"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "s3"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		bucket := cfg.GetString("bucket", "")
		if bucket == "" {
			return nil, fmt.Errorf("s3store: config key %q is required", "bucket")
		}
		region := cfg.GetString("region", "")
		prefix := cfg.GetString("key_prefix", "")

		sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
		if err != nil {
			return nil, fmt.Errorf("s3store: creating AWS session: %w", err)
		}
		return New(s3.New(sess), bucket, prefix), nil
	})
}

// Store is the S3-backed leaf storage.
type Store struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// New returns a Store against an already-configured S3 client.
// client is s3iface.S3API so tests can substitute a fake.
func New(client s3iface.S3API, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// objectKey derives "<prefix>/<style>/<z>/<X>/<Y>.meta" (joined with
// path.Join, so a trailing '/' on the prefix is not doubled and an
// empty prefix adds nothing) for the
// metatile covering tile — the same alignment rule as disk (spec
// §4.11), but flat: S3 has no directory-listing cost to amortize away.
func (s *Store) objectKey(tile tilekey.Address) string {
	x, y := tile.MetaOrigin()
	return path.Join(s.prefix, tile.Style, strconv.Itoa(int(tile.Z)), strconv.Itoa(int(x)), strconv.Itoa(int(y))+".meta")
}

func (s *Store) expiredKey(key string) string {
	return key + ".expired"
}

func isNoSuchKey(err error) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, bool, bool) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, true
		}
		slog.Error("s3store: get object failed", "bucket", s.bucket, "key", key, "err", err)
		return nil, false, false
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		slog.Error("s3store: read object body failed", "bucket", s.bucket, "key", key, "err", err)
		return nil, false, false
	}
	return data, true, true
}

func (s *Store) objectExists(ctx context.Context, key string) bool {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	key := s.objectKey(tile)
	data, ok, healthy := s.getObject(ctx, key)
	if !healthy {
		return storage.NullHandle, nil
	}
	if !ok {
		return storage.NullHandle, nil
	}

	container, err := metatile.Decode(data)
	if err != nil {
		slog.Error("s3store: corrupt metatile", "key", key, "err", err)
		return storage.NullHandle, nil
	}
	_, _, idx := tile.Offset()
	payload, ok := container.Get(tile.Format, idx)
	if !ok {
		return storage.NullHandle, nil
	}

	lastModified := s.objectLastModified(ctx, key)
	expired := s.objectExists(ctx, s.expiredKey(key))
	return storage.NewHandle(lastModified, payload, expired), nil
}

// objectLastModified reads the S3 object's LastModified field directly
// — the SDK has already parsed it, so no HTTP-date parsing is needed
// here (spec §4.11).
func (s *Store) objectLastModified(ctx context.Context, key string) time.Time {
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil || out.LastModified == nil {
		return time.Time{}
	}
	return *out.LastModified
}

func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	key := s.objectKey(tile)
	data, ok, healthy := s.getObject(ctx, key)
	if !healthy || !ok {
		return nil, false, nil
	}
	return data, true, nil
}

func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	if !tile.IsMetaAligned() {
		slog.Error("s3store: attempt to save tile at non-metatile boundary", "tile", tile.String())
		return false, nil
	}

	key := s.objectKey(tile)
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf),
	})
	if err != nil {
		slog.Error("s3store: put object failed", "bucket", s.bucket, "key", key, "err", err)
		return false, nil
	}

	// A successful write clears the sibling expiry marker, if any.
	_, _ = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.expiredKey(key)),
	})
	return true, nil
}

// Expire writes a zero-length companion key "<key>.expired" standing in
// for the disk backend's mtime=0 convention, since S3 objects carry no
// writable mtime (spec §4.11).
func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	key := s.objectKey(tile)
	if !s.objectExists(ctx, key) {
		return false, nil
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.expiredKey(key)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		slog.Error("s3store: expire marker write failed", "bucket", s.bucket, "key", key, "err", err)
		return false, nil
	}
	return true, nil
}
