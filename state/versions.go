// SPDX-License-Identifier: Apache-2.0

package state

import "stflow/util/orderedmap"

// VersionMap is the "local version map" of §3: for every flattened name, it
// tracks the highest version currently live. Every write bumps the version
// for its target name before writing either store.
type VersionMap struct {
	versions *orderedmap.OrderedMap[string, int]
}

// NewVersionMap builds an empty version map; every name defaults to
// version 0 (the initial, pre-any-write value) when first queried.
func NewVersionMap() *VersionMap {
	return &VersionMap{versions: orderedmap.New[string, int]()}
}

// Current returns the current version of name (0 if never written).
func (v *VersionMap) Current(name string) int {
	return v.versions.Value(name)
}

// Clone returns an independent copy.
func (v *VersionMap) Clone() *VersionMap {
	return &VersionMap{versions: v.versions.Clone()}
}

// Bump returns a new VersionMap identical to v except name's version is one
// higher than its current value, along with that new version number.
func (v *VersionMap) Bump(name string) (*VersionMap, int) {
	c := v.Clone()
	next := v.Current(name) + 1
	c.versions.Store(name, next)
	return c, next
}

// Max returns a new VersionMap whose entry for every name present in either
// v or other is the larger of the two maps' versions for that name, used
// by the Merger to combine two states' version maps (§4.5 "Version maps
// take the per-name maximum").
func Max(v, other *VersionMap) *VersionMap {
	out := v.Clone()
	other.versions.OrderedRange(func(name string, ver int) bool {
		if ver > out.Current(name) {
			out.versions.Store(name, ver)
		}
		return true
	})
	return out
}
