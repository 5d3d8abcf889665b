/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
)

// CreateTarball packs the run root into <runRoot>.tar.gz next to it and
// returns the archive path and size. Entry names are relative to the run
// root's parent so the archive unpacks into a single directory.
func CreateTarball(runRoot string) (string, int64, error) {
	archivePath := runRoot + ".tar.gz"
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return "", 0, fmt.Errorf("create archive %s: %w", archivePath, err)
	}
	defer archiveFile.Close()

	gzWriter, err := gzip.NewWriterLevel(archiveFile, gzip.BestCompression)
	if err != nil {
		return "", 0, fmt.Errorf("create gzip writer: %w", err)
	}
	tarWriter := tar.NewWriter(gzWriter)

	baseDir := filepath.Dir(runRoot)
	err = filepath.WalkDir(runRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if entry.IsDir() {
			header.Name += "/"
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tarWriter, file)
		return err
	})
	if err != nil {
		return "", 0, fmt.Errorf("pack %s: %w", runRoot, err)
	}
	if err := tarWriter.Close(); err != nil {
		return "", 0, fmt.Errorf("close tar writer: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return "", 0, fmt.Errorf("close gzip writer: %w", err)
	}

	stat, err := archiveFile.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat archive %s: %w", archivePath, err)
	}
	log.Infof("created archive %q of size %d bytes", archivePath, stat.Size())
	return archivePath, stat.Size(), nil
}

// UploadToS3 stores the archive under the given s3://bucket[/prefix] URI
// and returns the URI of the uploaded object.
func UploadToS3(ctx context.Context, uploadURI string, archivePath string) (string, error) {
	bucket, prefix, err := parseS3URI(uploadURI)
	if err != nil {
		return "", err
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer archiveFile.Close()

	key := filepath.Base(archivePath)
	if prefix != "" {
		key = prefix + "/" + key
	}
	// the upload manager splits large archives into multipart uploads
	uploader := manager.NewUploader(client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   archiveFile,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to bucket %q: %w", archivePath, bucket, err)
	}
	objectURI := fmt.Sprintf("s3://%s/%s", bucket, key)
	log.Infof("uploaded archive to %q", objectURI)
	return objectURI, nil
}

func parseS3URI(uploadURI string) (bucket string, prefix string, err error) {
	u, err := url.Parse(uploadURI)
	if err != nil {
		return "", "", fmt.Errorf("parse upload uri %q: %w", uploadURI, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("unsupported upload uri %q, only s3:// is supported", uploadURI)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("missing bucket in upload uri %q", uploadURI)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
