package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

const archiveContentType = "application/json"

// Object metadata keys written with each archived result.
const (
	metaTablesVersion = "Tables-Version"
	metaEntityCount   = "Entity-Count"
)

// ArchivedObject describes one stored result.
type ArchivedObject struct {
	DocumentID   string
	ObjectKey    string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ResultArchive stores resolution results as JSON objects under
// <bucket>/<prefix><document id>.json.
type ResultArchive struct {
	client *MinIOClient
	logger logging.Logger
}

func NewResultArchive(client *MinIOClient, log logging.Logger) *ResultArchive {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ResultArchive{client: client, logger: log}
}

// Name identifies the archive among result sinks.
func (a *ResultArchive) Name() string { return "minio" }

// ObjectKey returns the key a document's result is stored under.  The ID is
// path-escaped so that IDs containing '/' stay a single object.
func (a *ResultArchive) ObjectKey(documentID string) string {
	return a.client.config.ArchivePrefix + url.PathEscape(documentID) + ".json"
}

// Write archives res; results without a document ID cannot be addressed and
// are rejected.
func (a *ResultArchive) Write(ctx context.Context, res *entity.Result) error {
	if a.client.isClosed() {
		return ErrMinIOClientClosed
	}
	if res == nil || res.DocumentID == "" {
		return errors.New(errors.ErrCodeValidation, "result without document id cannot be archived")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal result")
	}

	key := a.ObjectKey(res.DocumentID)
	opts := minio.PutObjectOptions{
		ContentType: archiveContentType,
		UserMetadata: map[string]string{
			metaTablesVersion: res.TablesVersion,
			metaEntityCount:   strconv.Itoa(len(res.Entities)),
		},
	}
	info, err := a.client.client.PutObject(ctx, a.client.config.Bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "archive upload failed").WithDetail(key)
	}
	a.logger.Debug("Result archived",
		logging.DocumentID(res.DocumentID),
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return nil
}

// Fetch loads the archived result for documentID.
func (a *ResultArchive) Fetch(ctx context.Context, documentID string) (*entity.Result, error) {
	if a.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	key := a.ObjectKey(documentID)
	body, _, err := a.client.client.OpenObject(ctx, a.client.config.Bucket, key)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound.WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "archive download failed").WithDetail(key)
	}
	defer body.Close()

	var res entity.Result
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt archived result").WithDetail(key)
	}
	return &res, nil
}

func (a *ResultArchive) Delete(ctx context.Context, documentID string) error {
	key := a.ObjectKey(documentID)
	if err := a.client.client.RemoveObject(ctx, a.client.config.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "archive delete failed").WithDetail(key)
	}
	return nil
}

// List returns up to limit archived results, in key order.  limit <= 0 means
// no limit.
func (a *ResultArchive) List(ctx context.Context, limit int) ([]ArchivedObject, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := a.client.config.ArchivePrefix
	ch := a.client.client.ListObjects(ctx, a.client.config.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})

	var out []ArchivedObject
	for obj := range ch {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorage, "archive list failed")
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), ".json")
		id, err := url.PathUnescape(name)
		if err != nil {
			id = name
		}
		out = append(out, ArchivedObject{
			DocumentID:   id,
			ObjectKey:    obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ReadObject returns the full content of key together with its ETag.
func (c *MinIOClient) ReadObject(ctx context.Context, key string) ([]byte, string, error) {
	if c.isClosed() {
		return nil, "", ErrMinIOClientClosed
	}
	body, info, err := c.client.OpenObject(ctx, c.config.Bucket, key)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, "", ErrObjectNotFound.WithDetail(key)
		}
		return nil, "", errors.Wrap(err, errors.ErrCodeStorage, "object download failed").WithDetail(key)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeStorage, "object read failed").WithDetail(key)
	}
	return data, info.ETag, nil
}

// StatETag returns the current ETag of key.
func (c *MinIOClient) StatETag(ctx context.Context, key string) (string, error) {
	info, err := c.client.StatObject(ctx, c.config.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return "", ErrObjectNotFound.WithDetail(key)
		}
		return "", errors.Wrap(err, errors.ErrCodeStorage, "object stat failed").WithDetail(key)
	}
	return info.ETag, nil
}

//Personal.AI order the ending
