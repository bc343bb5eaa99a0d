package storage

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketStats summarizes a bucket or prefix.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// MinioClient wraps a MinIO connection for maintenance commands, separate
// from the server's global client.
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient creates a maintenance client for the given bucket.
func NewMinioClient(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &MinioClient{client: client, bucketName: bucket}, nil
}

// ListObjects prints every object under the audio prefixes, grouped by
// prefix and sorted by key.
func (m *MinioClient) ListObjects() error {
	ctx := context.Background()

	byPrefix := make(map[string][]minio.ObjectInfo)
	for object := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects: %w", object.Err)
		}
		prefix := "/"
		if i := strings.Index(object.Key, "/"); i >= 0 {
			prefix = object.Key[:i]
		}
		byPrefix[prefix] = append(byPrefix[prefix], object)
	}

	prefixes := make([]string, 0, len(byPrefix))
	for p := range byPrefix {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	for _, p := range prefixes {
		objects := byPrefix[p]
		sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
		fmt.Printf("%s/ (%d objects)\n", p, len(objects))
		for _, o := range objects {
			fmt.Printf("  %-60s %10s  %s\n", o.Key, formatSize(o.Size), o.LastModified.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

// GetBucketStats aggregates object count and size per top-level prefix.
func (m *MinioClient) GetBucketStats() (map[string]*BucketStats, error) {
	ctx := context.Background()

	stats := make(map[string]*BucketStats)
	for object := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		prefix := "/"
		if i := strings.Index(object.Key, "/"); i >= 0 {
			prefix = object.Key[:i]
		}
		s, ok := stats[prefix]
		if !ok {
			s = &BucketStats{}
			stats[prefix] = s
		}
		s.TotalObjects++
		s.TotalSize += object.Size
		if object.LastModified.After(s.LastModified) {
			s.LastModified = object.LastModified
		}
	}
	return stats, nil
}

// PrintBucketStats prints the per-prefix usage table.
func (m *MinioClient) PrintBucketStats() error {
	stats, err := m.GetBucketStats()
	if err != nil {
		return err
	}

	prefixes := make([]string, 0, len(stats))
	for p := range stats {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var totalObjects, totalSize int64
	fmt.Printf("Bucket: %s\n", m.bucketName)
	for _, p := range prefixes {
		s := stats[p]
		fmt.Printf("  %-12s %6d objects  %10s  last modified %s\n",
			p+"/", s.TotalObjects, formatSize(s.TotalSize), s.LastModified.Format("2006-01-02 15:04"))
		totalObjects += s.TotalObjects
		totalSize += s.TotalSize
	}
	fmt.Printf("  %-12s %6d objects  %10s\n", "total", totalObjects, formatSize(totalSize))
	return nil
}

// DeleteDirectory removes every object under a prefix. Used to clear
// orphaned uploads.
func (m *MinioClient) DeleteDirectory(prefix string) error {
	ctx := context.Background()
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	deleted := 0
	for object := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, object.Err)
		}
		if err := m.client.RemoveObject(ctx, m.bucketName, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", object.Key, err)
		}
		deleted++
	}

	log.Printf("Deleted %d objects under %s", deleted, prefix)
	return nil
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
