package minio

import (
	"context"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"

	"github.com/VReyesUOL/SecBioAuth/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	bucket := "test-secbioauth"

	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "data/")

	data := []byte("5,3,1,0\n2,1,0,4\n")
	require.NoError(t, store.Put(ctx, "lookupTables/PUT/HELR0.csv", data))

	got, err := blobstore.ReadAll(ctx, store, "lookupTables/PUT/HELR0.csv")
	require.NoError(t, err)
	require.Equal(t, data, got)

	blob, err := store.Open(ctx, "lookupTables/PUT/HELR0.csv")
	require.NoError(t, err)
	rc, err := blob.ReadRange(ctx, 8, 7)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "2,1,0,4", string(part))
	require.NoError(t, rc.Close())
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "lookupTables/")
	require.NoError(t, err)
	require.Contains(t, names, "lookupTables/PUT/HELR0.csv")

	_, err = store.Open(ctx, "missing.csv")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}
