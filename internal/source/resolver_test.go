package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/inf/reelbox/internal/store"
)

type fakeContent struct {
	openErr   error
	grantErr  error
	opened    []string
	granted   []string
	openCount int
}

func (f *fakeContent) OpenRead(_ context.Context, handle string) (io.ReadCloser, error) {
	f.openCount++
	f.opened = append(f.opened, handle)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeContent) AcquireReadGrant(_ context.Context, handle string) error {
	f.granted = append(f.granted, handle)
	return f.grantErr
}

func TestNormalizeLocator(t *testing.T) {
	require.Equal(t, "content://media/1", NormalizeLocator("/content://media/1"))
	require.Equal(t, "content://media/1", NormalizeLocator("content://media/1"))
	require.Equal(t, "/media/a.mp4", NormalizeLocator("/media/a.mp4"))
}

func TestResolveFile(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	path := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	src, err := r.Resolve(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, store.KindFile, src.Kind)
	require.Equal(t, path, src.Locator)

	_, err = r.Resolve(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveHandleProbesAndAcquiresGrant(t *testing.T) {
	content := &fakeContent{}
	r := NewResolver(content, zerolog.Nop())

	src, err := r.Resolve(context.Background(), "content://media/7")
	require.NoError(t, err)
	require.Equal(t, store.KindHandle, src.Kind)
	require.Equal(t, []string{"content://media/7"}, content.opened)
	require.Equal(t, []string{"content://media/7"}, content.granted)
}

func TestResolveHandleGrantFailureIsNonFatal(t *testing.T) {
	content := &fakeContent{grantErr: errors.New("denied")}
	r := NewResolver(content, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "content://media/7")
	require.NoError(t, err)
}

func TestResolveHandlePermissionExpired(t *testing.T) {
	content := &fakeContent{openErr: errors.New("no grant")}
	r := NewResolver(content, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "content://media/7")
	require.ErrorIs(t, err, ErrPermissionExpired)
	require.Empty(t, content.granted, "no grant attempt after a failed probe")
}

func TestResolveMalformedHandleIsRepaired(t *testing.T) {
	content := &fakeContent{}
	r := NewResolver(content, zerolog.Nop())

	src, err := r.Resolve(context.Background(), "/content://media/7")
	require.NoError(t, err)
	require.Equal(t, "content://media/7", src.Locator)
}

func TestResolveHandleWithoutFacilityFails(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())
	_, err := r.Resolve(context.Background(), "content://media/7")
	require.ErrorIs(t, err, ErrPermissionExpired)
}
