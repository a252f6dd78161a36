// Package fetch retrieves legacy dump files from object storage into the
// local data directory, so the import command can run against a fresh copy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Fetch downloads every .sql object under bucket/prefix into dir. With skip
// set, files already present locally are left alone.
func Fetch(ctx context.Context, bucket, prefix, dir string, skip bool) error {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("error loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	dl := manager.NewDownloader(client)
	pg := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	n := 0
	for pg.HasMorePages() {
		page, err := pg.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("error listing s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".sql") {
				continue
			}
			pth := filepath.Join(dir, filepath.Base(key))
			if skip && exists(pth) {
				slog.Info("Skipping existing file", "path", pth)
				continue
			}
			if err := download(ctx, dl, bucket, key, pth); err != nil {
				return err
			}
			n++
		}
	}
	slog.Info("Download finished", "files", n)
	return nil
}

func exists(pth string) bool {
	_, err := os.Stat(pth)
	return !errors.Is(err, os.ErrNotExist)
}

func download(ctx context.Context, dl *manager.Downloader, bucket, key, pth string) error {
	slog.Info("Downloading", "key", key, "path", pth)
	f, err := os.Create(pth)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", pth, err)
	}
	defer f.Close()
	if _, err := dl.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("error downloading s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
