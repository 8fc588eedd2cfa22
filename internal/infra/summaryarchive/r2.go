package summaryarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

// R2Archive stores summaries in Cloudflare R2 via the S3 compatible API. Each save writes a
// history object and overwrites the subject's latest object.
type R2Archive struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewR2Archive constructs the archive adapter.
func NewR2Archive(endpoint, accessKey, secretKey, bucket, region, prefix string, logger *slog.Logger) (*R2Archive, error) {
	cleanEndpoint := sanitizeEndpoint(endpoint)
	useSSL := !strings.HasPrefix(strings.ToLower(strings.TrimSpace(endpoint)), "http://")
	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init r2 client: %w", err)
	}
	return &R2Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With("component", "summaryarchive.r2"),
	}, nil
}

// Save uploads rec as JSON.
func (a *R2Archive) Save(ctx context.Context, rec summarizer.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	historyKey := objectKey(a.prefix, rec.Subject, rec.IsTopic, rec.CreatedAt.UTC().Format("20060102T150405Z")+"-"+uuid.NewString()+".json")
	for _, key := range []string{historyKey, latestKey(a.prefix, rec.Subject, rec.IsTopic)} {
		_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
			ContentType:      "application/json",
			DisableMultipart: true,
		})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	a.logger.Debug("summary archived", "subject", rec.Subject, "key", historyKey)
	return nil
}

// Latest reads the most recent summary for subject.
func (a *R2Archive) Latest(ctx context.Context, subject string, isTopic bool) (summarizer.Record, bool, error) {
	key := latestKey(a.prefix, subject, isTopic)
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return summarizer.Record{}, false, err
	}
	defer obj.Close()
	if _, statErr := obj.Stat(); statErr != nil {
		if minio.ToErrorResponse(statErr).Code == "NoSuchKey" {
			return summarizer.Record{}, false, nil
		}
		return summarizer.Record{}, false, statErr
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return summarizer.Record{}, false, err
	}
	var rec summarizer.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return summarizer.Record{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, true, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *R2Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err == nil && exists {
		return nil
	}
	err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

func latestKey(prefix, subject string, isTopic bool) string {
	return objectKey(prefix, subject, isTopic, "latest.json")
}

func objectKey(prefix, subject string, isTopic bool, name string) string {
	kind := "ticker"
	if isTopic {
		kind = "topic"
	}
	parts := []string{kind, url.PathEscape(subject), name}
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

var _ summarizer.Archive = (*R2Archive)(nil)
