package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResetter injects failures into the reset protocol
type fakeResetter struct {
	ids       []string
	listErr   error
	deleteErr error
	switchErr error
	switched  string
	deleted   []string
}

func (f *fakeResetter) ListIDs(ctx context.Context) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakeResetter) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deleted = append(f.deleted, ids...)
	return len(ids), nil
}

func (f *fakeResetter) SwitchCollection(ctx context.Context, name string) error {
	if f.switchErr != nil {
		return f.switchErr
	}
	f.switched = name
	return nil
}

func fixedNow() time.Time { return time.Unix(1700000000, 0) }

func TestResetCollection_DeletesAll(t *testing.T) {
	r := &fakeResetter{ids: []string{"a", "b"}}

	result, err := resetCollection(context.Background(), r, "kb", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.False(t, result.FellBack)
	assert.Equal(t, []string{"a", "b"}, r.deleted)
	assert.Empty(t, r.switched)
}

func TestResetCollection_Empty(t *testing.T) {
	r := &fakeResetter{}

	result, err := resetCollection(context.Background(), r, "kb", fixedNow)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
	assert.False(t, result.FellBack)
}

func TestResetCollection_FallsBackOnDeleteFailure(t *testing.T) {
	boom := errors.New("disk I/O error")
	r := &fakeResetter{ids: []string{"a"}, deleteErr: boom}

	result, err := resetCollection(context.Background(), r, "kb", fixedNow)
	require.NoError(t, err)
	assert.True(t, result.FellBack)
	assert.ErrorIs(t, result.Cause, boom)
	assert.True(t, strings.HasPrefix(result.Collection, "kb_1700000000_"))
	assert.Len(t, result.Collection, len("kb_1700000000_")+8)
	assert.Equal(t, result.Collection, r.switched)
}

func TestResetCollection_FallsBackOnListFailure(t *testing.T) {
	r := &fakeResetter{listErr: errors.New("locked")}

	result, err := resetCollection(context.Background(), r, "kb", fixedNow)
	require.NoError(t, err)
	assert.True(t, result.FellBack)
}

func TestResetCollection_FallbackFails(t *testing.T) {
	r := &fakeResetter{ids: []string{"a"}, deleteErr: errors.New("a"), switchErr: errors.New("b")}

	_, err := resetCollection(context.Background(), r, "kb", fixedNow)
	assert.Error(t, err)
}

func TestResetCollection_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeResetter{ids: []string{"a"}, deleteErr: context.Canceled}

	_, err := resetCollection(ctx, r, "kb", fixedNow)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.switched)
}

func TestFallbackCollectionName_Unique(t *testing.T) {
	a := FallbackCollectionName("kb", fixedNow())
	b := FallbackCollectionName("kb", fixedNow())
	assert.NotEqual(t, a, b)
}
