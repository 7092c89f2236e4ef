// SPDX-License-Identifier: Apache-2.0

package orderedmap_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"stflow/util/orderedmap"
)

func TestLoadStore(t *testing.T) {
	t.Parallel()

	pairs := [][2]int{{1, 2}, {2, 3}, {3, 4}}
	m := orderedmap.New[int, int]()
	for _, p := range pairs {
		k, v := p[0], p[1]
		m.Store(k, v)
		loadedV, ok := m.Load(k)
		require.True(t, ok)
		require.Equal(t, v, loadedV)
		require.Equal(t, v, m.Value(k))
	}

	v, ok := m.Load(-1)
	require.False(t, ok)
	require.Empty(t, v)
	require.Empty(t, m.Value(-1))

	require.Equal(t, len(pairs), m.Len())
}

func TestStore_OverwritesExistingKeyInPlace(t *testing.T) {
	t.Parallel()

	m := orderedmap.New[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)
	m.Store("a", 10)

	require.Equal(t, 10, m.Value("a"))
	require.Equal(t, 2, m.Len(), "overwriting a key must not append a second pair")

	var keys []string
	m.OrderedRange(func(k string, v int) bool {
		keys = append(keys, k)
		return true
	})
	require.Equal(t, []string{"a", "b"}, keys, "insertion order survives an in-place overwrite")
}

func TestOrderedRange(t *testing.T) {
	t.Parallel()

	pairs := make([][2]int, 0, 100)
	for i := 0; i < 100; i++ {
		pairs = append(pairs, [2]int{i, i + 1})
	}

	m := orderedmap.New[int, int]()
	for _, p := range pairs {
		m.Store(p[0], p[1])
	}

	expectedKeys := make([]int, 0, len(pairs))
	for _, p := range pairs {
		expectedKeys = append(expectedKeys, p[0])
	}

	for i := 0; i < 5; i++ {
		t.Run(fmt.Sprintf("Run%d", i), func(t *testing.T) {
			t.Parallel()

			var keys []int
			m.OrderedRange(func(k int, _ int) bool {
				keys = append(keys, k)
				return true
			})
			require.Equal(t, expectedKeys, keys)
		})
	}
}

func TestOrderedRange_StopsEarlyWhenFFalse(t *testing.T) {
	t.Parallel()

	m := orderedmap.New[int, int]()
	m.Store(1, 1)
	m.Store(2, 2)
	m.Store(3, 3)

	var seen []int
	m.OrderedRange(func(k int, _ int) bool {
		seen = append(seen, k)
		return k != 2
	})
	require.Equal(t, []int{1, 2}, seen)
}

func TestClone_IsIndependentOfOriginal(t *testing.T) {
	t.Parallel()

	m := orderedmap.New[int, int]()
	m.Store(1, 1)
	m.Store(2, 2)

	clone := m.Clone()
	clone.Store(3, 3)
	m.Store(4, 4)

	require.Equal(t, 3, m.Len())
	require.Equal(t, 3, clone.Len())
	_, ok := m.Load(3)
	require.False(t, ok, "a key stored only on the clone must not leak back into the original")
	_, ok = clone.Load(4)
	require.False(t, ok, "a key stored only on the original must not leak into the clone")
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
