package file

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haje01/swak/buffer"
	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/event"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestFile_AppendJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.log")
	fs, err := Parse([]string{"-p", path})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Start(ctx))

	s := event.NewMultiWithCap(2)
	s.Add(time.Unix(1, 0), event.Record{"n": 1})
	s.Add(time.Unix(2, 0), event.Record{"n": 2})
	_, err = fs.Append(ctx, "app.web", s)
	require.NoError(t, err)

	require.NoError(t, fs.Stop())
	require.NoError(t, fs.Shutdown(ctx))

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var line struct {
		Tag    string         `json:"tag"`
		Record map[string]any `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &line))
	assert.Equal(t, "app.web", line.Tag)
	assert.EqualValues(t, 2, line.Record["n"])
}

func TestFile_Rotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	fs, err := New(Config{Path: path, RotateSize: 1, Backups: 2})
	require.NoError(t, err)

	// Any rotate size below one MiB rotates at one MiB.
	first := bytes.Repeat([]byte("a"), 600*1024)
	second := bytes.Repeat([]byte("b"), 600*1024)

	ctx := context.Background()
	require.NoError(t, fs.Start(ctx))
	require.NoError(t, fs.Write(ctx, first))
	require.NoError(t, fs.Write(ctx, second))
	require.NoError(t, fs.Stop())
	require.NoError(t, fs.Shutdown(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, second, data)

	backups, err := filepath.Glob(filepath.Join(dir, "out-*.log"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err = os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, first, data)
}

func TestFile_NoRotationByDefault(t *testing.T) {
	fs, err := New(Config{Path: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	assert.Greater(t, fs.maxSizeMB(), 1<<20)

	fs, err = New(Config{Path: "x.log", RotateSize: 64_000_000})
	require.NoError(t, err)
	assert.Equal(t, 62, fs.maxSizeMB())
}

func TestFile_BufferedAtShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	fs, err := New(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, fs.SetBuffer(buffer.DefaultConfig()))

	ctx := context.Background()
	require.NoError(t, fs.Start(ctx))
	_, err = fs.Append(ctx, "a", event.NewOne(time.Unix(0, 0), event.Record{"x": "y"}))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, fs.Stop())
	require.NoError(t, fs.Shutdown(ctx))
	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0], `"x":"y"`))
}

func TestFile_Parse(t *testing.T) {
	fs, err := Parse([]string{"-p", "/tmp/x.log", "-r", "64MB", "-k", "3", "-a", "7", "-z"})
	require.NoError(t, err)
	assert.Equal(t, Config{Path: "/tmp/x.log", RotateSize: 64_000_000, Backups: 3, MaxAge: 7, Compress: true}, fs.Config())
	assert.Equal(t, 4, fs.Retry().MaxAttempts)

	for _, args := range [][]string{
		nil,
		{"-p", "x", "-r", "lots"},
		{"-p", "x", "-k", "-1"},
		{"-p", "x", "-a", "-1"},
	} {
		_, err := Parse(args)
		require.Error(t, err, args)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestFile_WriteOutsideLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	fs, err := New(Config{Path: path})
	require.NoError(t, err)
	err = fs.Write(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, errors.ErrNotStarted)

	ctx := context.Background()
	require.NoError(t, fs.Start(ctx))
	require.NoError(t, fs.Stop())
	require.NoError(t, fs.Shutdown(ctx))

	err = fs.Write(ctx, []byte("late"))
	assert.ErrorIs(t, err, errors.ErrNotStarted)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
