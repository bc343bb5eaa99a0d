package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"melodizr/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	bucketName  string
)

// InitMinio initializes the MinIO client and ensures the audio bucket
// exists.
func InitMinio() error {
	cfg := config.Load()
	bucketName = cfg.MinioBucket

	log.Printf("Connecting to MinIO at %s (bucket %s)", cfg.MinioEndpoint, bucketName)

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucketName, err)
	}
	if !exists {
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
		}
		log.Printf("Created bucket: %s", bucketName)
	}

	minioClient = client
	log.Println("MinIO client initialized.")
	return nil
}

// GetMinioClient returns the MinIO client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// UploadAudioFile uploads a local audio file under the given object prefix
// (e.g. "tracks", "voices") and returns the object path.
func UploadAudioFile(ctx context.Context, prefix, localPath string) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("MinIO client not initialized")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	objectName := fmt.Sprintf("%s/%s", prefix, filepath.Base(localPath))
	_, err = minioClient.PutObject(ctx, bucketName, objectName, f, stat.Size(), minio.PutObjectOptions{
		ContentType: "audio/wav",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectName, err)
	}

	log.Printf("Uploaded %s (%d bytes)", objectName, stat.Size())
	return objectName, nil
}

// OpenAudioObject opens an object for streaming. The caller closes the
// reader.
func OpenAudioObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}
	obj, err := minioClient.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", objectName, err)
	}
	return obj, nil
}

// RemoveAudioObject deletes an object, ignoring objects that are already
// gone.
func RemoveAudioObject(ctx context.Context, objectName string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	err := minioClient.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove object %s: %w", objectName, err)
	}
	return nil
}
