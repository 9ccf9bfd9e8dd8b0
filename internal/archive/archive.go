// Package archive keeps raw import files in GCS so a botched import
// can always be replayed from the original bytes.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// DefaultBucket is the GCS bucket holding raw import files.
const DefaultBucket = "finum-import-archive"

// ObjectName builds the archive object path for one import:
// imports/<user>/<date>-<uuid>-<filename>.
func ObjectName(userID, filename string, now time.Time) string {
	base := path.Base(filename)
	if base == "." || base == "/" || base == "" {
		base = "import"
	}
	return fmt.Sprintf("imports/%s/%s-%s-%s", userID, now.Format("2006-01-02"), uuid.New().String(), base)
}

// StoreImport uploads raw import bytes to the bucket and returns the
// gs:// URI of the stored object.
// It assumes Application Default Credentials are configured.
func StoreImport(ctx context.Context, bucketName, objectName string, data []byte) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("StoreImport: creating storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("StoreImport: writing object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("StoreImport: finalize upload: %w", err)
	}

	return "gs://" + bucketName + "/" + objectName, nil
}

// Fetch downloads the archived bytes from the given GCS URI.
func Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}

	bucketName := parts[0]
	objectPath := parts[1]

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	return data, nil
}
