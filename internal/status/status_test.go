package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, dir string) *Registry {
	r, err := Open(dir, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestLastWithoutRuns(t *testing.T) {
	r := openTest(t, "")
	_, err := r.Last()
	require.ErrorIs(t, err, ErrNoRun)

	runs, err := r.History(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRecordAndHistory(t *testing.T) {
	r := openTest(t, "")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Record(&Run{
			Id:        string(rune('a' + i)),
			Command:   "recompute",
			Status:    "success",
			Rows:      100 + i,
			Completed: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	last, err := r.Last()
	require.NoError(t, err)
	assert.Equal(t, "e", last.Id)
	assert.Equal(t, 104, last.Rows)
	assert.True(t, last.Completed.Equal(base.Add(4*time.Minute)))

	runs, err := r.History(3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "e", runs[0].Id)
	assert.Equal(t, "d", runs[1].Id)
	assert.Equal(t, "c", runs[2].Id)

	all, err := r.History(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRegistryOnDisk(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, 0)
	require.NoError(t, err)
	require.NoError(t, r.Record(&Run{Id: "x", Command: "recompute", Status: StatusSuccess, Completed: time.Now()}))
	require.NoError(t, r.Close())

	r = openTest(t, dir)
	last, err := r.Last()
	require.NoError(t, err)
	assert.Equal(t, "x", last.Id)
}

func TestLastSkipsFailedRuns(t *testing.T) {
	r := openTest(t, "")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Record(&Run{
		Id:        "ok",
		Command:   "recompute",
		Status:    StatusSuccess,
		Start:     base.Add(-time.Hour).Unix(),
		End:       base.Unix(),
		Rows:      3,
		Completed: base,
	}))
	require.NoError(t, r.Record(&Run{
		Id:        "bad",
		Command:   "recompute",
		Status:    "rejected",
		Message:   "malformed request: start",
		Completed: base.Add(time.Minute),
	}))

	last, err := r.Last()
	require.NoError(t, err)
	assert.Equal(t, "ok", last.Id)
	assert.Equal(t, 3, last.Rows)
	assert.Equal(t, base.Unix(), last.End)

	runs, err := r.History(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "bad", runs[0].Id)
	assert.Equal(t, "rejected", runs[0].Status)
}

func TestLastWithOnlyFailedRuns(t *testing.T) {
	r := openTest(t, "")
	require.NoError(t, r.Record(&Run{Id: "bad", Command: "recompute", Status: "internal_error", Completed: time.Now()}))

	_, err := r.Last()
	require.ErrorIs(t, err, ErrNoRun)
}
