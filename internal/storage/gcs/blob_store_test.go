package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "hiscores", Prefix: "/archive/"})
	require.NoError(t, err)
	require.Equal(t, "archive/runs/r1/out.jsonl", store.ObjectName("runs/r1/out.jsonl"))

	bare, err := New(client, Config{Bucket: "hiscores"})
	require.NoError(t, err)
	require.Equal(t, "runs/r1/out.jsonl", bare.ObjectName("/runs/r1/out.jsonl"))

	_, err = store.PutObject(context.Background(), " ", "", nil)
	require.Error(t, err)
}
