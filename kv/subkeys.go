package kv

import (
	"strconv"
	"strings"
)

// Sub-key encodings shared by package cache's journals, package delta's
// projection, and package keyframe's snapshots: every family keys its
// per-entity changes by a single string, built from the tuple the
// family actually identifies entities by (spec.md §4.3's entity_key).
const subKeySep = "\x00"

// EncodeEdgeKey packs an edge's (orig,dest,idx) into the nodes/edges
// family sub-key shape.
func EncodeEdgeKey(orig, dest string, idx int) string {
	return orig + subKeySep + dest + subKeySep + strconv.Itoa(idx)
}

// DecodeEdgeKey reverses EncodeEdgeKey.
func DecodeEdgeKey(s string) (orig, dest string, idx int, ok bool) {
	parts := strings.SplitN(s, subKeySep, 3)
	if len(parts) != 3 {
		return "", "", 0, false
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", "", 0, false
	}
	return parts[0], parts[1], idx, true
}

// EncodeNodeValKey packs (node,attrKey) into the node_val family's
// sub-key shape.
func EncodeNodeValKey(node, key string) string {
	return node + subKeySep + key
}

// DecodeNodeValKey reverses EncodeNodeValKey.
func DecodeNodeValKey(s string) (node, key string, ok bool) {
	parts := strings.SplitN(s, subKeySep, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// EncodeEdgeValKey packs (orig,dest,idx,attrKey) into the edge_val
// family's sub-key shape.
func EncodeEdgeValKey(orig, dest string, idx int, key string) string {
	return orig + subKeySep + dest + subKeySep + strconv.Itoa(idx) + subKeySep + key
}

// DecodeEdgeValKey reverses EncodeEdgeValKey.
func DecodeEdgeValKey(s string) (orig, dest string, idx int, key string, ok bool) {
	parts := strings.SplitN(s, subKeySep, 4)
	if len(parts) != 4 {
		return "", "", 0, "", false
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", "", 0, "", false
	}
	return parts[0], parts[1], idx, parts[3], true
}
