package cmd

import (
	"fmt"
	"log"

	"melodizr/config"
	"melodizr/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO bucket maintenance",
	Long:  `Inspect and manage the audio bucket: list objects, show per-prefix usage, or delete a directory of orphaned uploads.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.NewMinioClient(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.MinioUseSSL,
		)
		if err != nil {
			log.Fatalf("Failed to create MinIO client: %v", err)
		}

		switch {
		case minioDelete:
			if minioPrefix == "" {
				log.Fatal("--delete requires --prefix")
			}
			if err := client.DeleteDirectory(minioPrefix); err != nil {
				log.Fatalf("Failed to delete directory: %v", err)
			}
		case minioStats:
			if err := client.PrintBucketStats(); err != nil {
				log.Fatalf("Failed to get bucket stats: %v", err)
			}
		default:
			if err := client.ListObjects(); err != nil {
				log.Fatalf("Failed to list objects: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "Prefix to filter or operate on")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "Show bucket usage statistics")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "Delete the prefix and everything under it")
}
