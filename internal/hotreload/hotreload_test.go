package hotreload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatchFiresOnChangeAndCloseStopsGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))

	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w, err := New(logrus.New(), 10*time.Millisecond)
	require.NoError(t, err)

	fired := make(chan string, 1)
	require.NoError(t, w.Watch(path, func(p string) { fired <- p }))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	select {
	case p := <-fired:
		assert.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was never invoked")
	}

	require.NoError(t, w.Close())
}

func TestWatchMissingPathErrors(t *testing.T) {
	w, err := New(logrus.New(), time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	err = w.Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(string) {})
	assert.Error(t, err)
}
