package controlplane

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aponysus/callscope/policy"
)

// lineLoader reads "application=<name>" files; anything else fails.
func lineLoader(_ context.Context, path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	name, ok := strings.CutPrefix(strings.TrimSpace(string(b)), "application=")
	if !ok {
		return Snapshot{}, errors.New("unparseable")
	}
	return Snapshot{Application: name}, nil
}

func TestFileProvider_Validation(t *testing.T) {
	_, err := NewFileProvider("", lineLoader)
	require.Error(t, err)
	_, err = NewFileProvider("x.yaml", nil)
	require.Error(t, err)
}

func TestFileProvider_SnapshotSetsSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callscope.conf")
	require.NoError(t, os.WriteFile(path, []byte("application=one"), 0o600))

	p, err := NewFileProvider(path, lineLoader)
	require.NoError(t, err)

	s, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "one", s.Application)
	require.Equal(t, policy.PolicySourceFile, s.Source)
}

func TestFileProvider_WatchReloadsAndKeepsLastGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callscope.conf")
	require.NoError(t, os.WriteFile(path, []byte("application=one"), 0o600))

	p, err := NewFileProvider(path, lineLoader)
	require.NoError(t, err)
	store, err := NewStore(nil)
	require.NoError(t, err)
	require.NoError(t, store.Refresh(context.Background(), p))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Watch(ctx, store))
	defer p.Close()

	require.NoError(t, os.WriteFile(path, []byte("application=two"), 0o600))
	require.Eventually(t, func() bool { return store.Load().Application == "two" }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, "two", store.Load().Application)
}
