package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID      string
	Value   string
	Updated time.Time
}

// mockAdapter compares items by Value.
type mockAdapter struct{}

func (mockAdapter) Name() string               { return "mock" }
func (mockAdapter) Key(i item) string          { return i.ID }
func (mockAdapter) UpdatedAt(i item) time.Time { return i.Updated }
func (mockAdapter) CompareFields(l, r item) []string {
	if l.Value == r.Value {
		return nil
	}
	return []string{fmt.Sprintf("value: local=%s remote=%s", l.Value, r.Value)}
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newSpec(window time.Duration) *Spec[item] {
	return &Spec[item]{Adapter: mockAdapter{}, ConflictWindow: window}
}

func TestCompare_Partitions(t *testing.T) {
	local := Index[item](mockAdapter{}, []item{
		{ID: "a", Value: "x", Updated: base},
		{ID: "b", Value: "same", Updated: base},
		{ID: "c", Value: "new", Updated: base.Add(5 * time.Second)},
		{ID: "d", Value: "old", Updated: base},
		{ID: "e", Value: "mine", Updated: base},
	})
	remote := Index[item](mockAdapter{}, []item{
		{ID: "b", Value: "same", Updated: base.Add(time.Hour)},
		{ID: "c", Value: "old", Updated: base},
		{ID: "d", Value: "new", Updated: base.Add(5 * time.Second)},
		{ID: "e", Value: "theirs", Updated: base.Add(500 * time.Millisecond)},
		{ID: "f", Value: "y", Updated: base},
	})

	report := Compare(newSpec(time.Second), local, remote)

	assert.Equal(t, []string{"a"}, report.LocalOnly)
	assert.Equal(t, []string{"f"}, report.RemoteOnly)
	assert.Equal(t, []string{"b"}, report.Identical)
	assert.Equal(t, []string{"e"}, report.Conflict)
	assert.Equal(t, []string{"d"}, report.NeedsLocalUpdate)
	assert.Equal(t, []string{"c"}, report.NeedsRemoteUpdate)
	assert.Equal(t, 6, report.Total())
}

func TestCompare_PartitionsAreDisjointAndCoverUnion(t *testing.T) {
	local := map[string]item{}
	remote := map[string]item{}
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("k%02d", i)
		switch i % 5 {
		case 0:
			local[id] = item{ID: id, Value: "v", Updated: base}
		case 1:
			remote[id] = item{ID: id, Value: "v", Updated: base}
		case 2:
			local[id] = item{ID: id, Value: "v", Updated: base}
			remote[id] = item{ID: id, Value: "v", Updated: base}
		case 3:
			local[id] = item{ID: id, Value: "l", Updated: base.Add(time.Duration(i) * 100 * time.Millisecond)}
			remote[id] = item{ID: id, Value: "r", Updated: base}
		case 4:
			local[id] = item{ID: id, Value: "l", Updated: base}
			remote[id] = item{ID: id, Value: "r", Updated: base.Add(time.Duration(i) * 100 * time.Millisecond)}
		}
	}

	report := Compare(newSpec(time.Second), local, remote)

	seen := map[string]Partition{}
	for _, p := range []Partition{
		PartitionLocalOnly, PartitionRemoteOnly, PartitionIdentical,
		PartitionConflict, PartitionNeedsLocalUpdate, PartitionNeedsRemoteUpdate,
	} {
		keys := report.Keys(p)
		assert.True(t, sort.StringsAreSorted(keys), "partition %s must be sorted", p)
		for _, key := range keys {
			prev, dup := seen[key]
			assert.False(t, dup, "key %s in both %s and %s", key, prev, p)
			seen[key] = p
		}
	}

	union := buildUnion(local, remote)
	assert.Len(t, seen, len(union))
	for key := range union {
		assert.Contains(t, seen, key)
	}
}

func TestClassify_ConflictWindow(t *testing.T) {
	tests := []struct {
		name   string
		window time.Duration
		skew   time.Duration
		want   Partition
	}{
		{"within window local newer", time.Second, 500 * time.Millisecond, PartitionConflict},
		{"within window remote newer", time.Second, -500 * time.Millisecond, PartitionConflict},
		{"equal timestamps", time.Second, 0, PartitionConflict},
		{"at window boundary", time.Second, time.Second, PartitionNeedsRemoteUpdate},
		{"outside window remote newer", time.Second, -2 * time.Second, PartitionNeedsLocalUpdate},
		{"zero window uses default", 0, 999 * time.Millisecond, PartitionConflict},
		{"narrow window", 100 * time.Millisecond, 500 * time.Millisecond, PartitionNeedsRemoteUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := item{ID: "k", Value: "l", Updated: base.Add(tt.skew)}
			remote := item{ID: "k", Value: "r", Updated: base}

			result := Classify(newSpec(tt.window), local, remote)
			assert.Equal(t, tt.want, result.Partition)
			assert.Equal(t, tt.skew, result.Skew)
			assert.Len(t, result.Mismatch, 1)
		})
	}
}

func TestClassify_IdenticalIgnoresTimestamps(t *testing.T) {
	local := item{ID: "k", Value: "v", Updated: base}
	remote := item{ID: "k", Value: "v", Updated: base.Add(24 * time.Hour)}

	result := Classify(newSpec(time.Second), local, remote)
	assert.Equal(t, PartitionIdentical, result.Partition)
	assert.Empty(t, result.Mismatch)
}

func TestIndex_LastDuplicateWins(t *testing.T) {
	index := Index[item](mockAdapter{}, []item{{ID: "a", Value: "1"}, {ID: "a", Value: "2"}})
	assert.Len(t, index, 1)
	assert.Equal(t, "2", index["a"].Value)
}

func TestSnapshot(t *testing.T) {
	spec := newSpec(0)
	local := func(context.Context) ([]item, error) { return []item{{ID: "a"}}, nil }
	remote := func(context.Context) ([]item, error) { return []item{{ID: "b"}, {ID: "c"}}, nil }

	l, r, err := Snapshot(context.Background(), spec, local, remote)
	require.NoError(t, err)
	assert.Len(t, l, 1)
	assert.Len(t, r, 2)
}

func TestSnapshot_ErrorHandling(t *testing.T) {
	tests := []struct {
		name      string
		localErr  error
		remoteErr error
		expectErr string
	}{
		{"local load error", errors.New("db error"), nil, "failed to load local mock snapshot: db error"},
		{"remote load error", nil, errors.New("network error"), "failed to load remote mock snapshot: network error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := func(context.Context) ([]item, error) { return nil, tt.localErr }
			remote := func(context.Context) ([]item, error) { return nil, tt.remoteErr }

			_, _, err := Snapshot(context.Background(), newSpec(0), local, remote)
			require.Error(t, err)
			assert.EqualError(t, err, tt.expectErr)
		})
	}
}
