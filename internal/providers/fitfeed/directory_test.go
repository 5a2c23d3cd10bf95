package fitfeed

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectorySkipsUndecodableFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.fit"), []byte("not a fit file"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	feed := NewDirectory(dir, WithLogger(log.New(io.Discard, "", 0)))
	page, err := feed.FetchActivities(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Empty(t, page.Activities)
	require.Zero(t, page.Fetched)
}

func TestDirectoryEmpty(t *testing.T) {
	feed := NewDirectory(t.TempDir(), WithLogger(log.New(io.Discard, "", 0)))
	page, err := feed.FetchActivities(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Empty(t, page.Activities)
	require.Zero(t, page.Fetched)
}

func TestDecodeFileMissing(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "absent.fit"))
	require.Error(t, err)
}
