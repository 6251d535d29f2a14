package keyframe

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/uint256"
)

// Digest is a deterministic, order-independent 512-bit identifier for a
// Snapshot's contents (spec.md §4.4 Hashing): the XOR of every entry's
// own digest, so map iteration order never affects the result.
type Digest struct {
	Lo, Hi uint256.Int
}

// xorEntry folds one serialized entry into the running digest. Each
// entry is expanded from xxhash's 64 bits into 512 by rehashing with
// eight distinct one-byte salts, giving a fixed-size contribution that
// XORs cleanly regardless of how many entries came before it.
func (d *Digest) xorEntry(key string) {
	var words [8]uint64
	for i := range words {
		h := xxhash.New()
		h.Write([]byte{byte(i)})
		_, _ = h.WriteString(key)
		words[i] = h.Sum64()
	}
	var lo, hi uint256.Int
	lo.SetBytes(wordsToBytes(words[0:4]))
	hi.SetBytes(wordsToBytes(words[4:8]))
	d.Lo.Xor(&d.Lo, &lo)
	d.Hi.Xor(&d.Hi, &hi)
}

func wordsToBytes(words []uint64) []byte {
	b := make([]byte, 8*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint64(b[i*8:], w)
	}
	return b
}

// Hash computes snap's digest: every node, edge, graph attribute, node
// attribute, and edge attribute contributes one XOR'd entry. A family
// prefix keeps a node named the same as an edge's sub-key, say, from
// cancelling each other out.
func Hash(snap *Snapshot) Digest {
	var d Digest
	for node := range snap.Nodes {
		d.xorEntry("node\x00" + node)
	}
	for ek := range snap.Edges {
		d.xorEntry("edge\x00" + ek)
	}
	for k, v := range snap.GraphVal {
		d.xorEntry("gval\x00" + k + "\x00" + fmtVal(v))
	}
	for node, attrs := range snap.NodeVal {
		for k, v := range attrs {
			d.xorEntry("nval\x00" + node + "\x00" + k + "\x00" + fmtVal(v))
		}
	}
	for ek, attrs := range snap.EdgeVal {
		for k, v := range attrs {
			d.xorEntry("eval\x00" + ek + "\x00" + k + "\x00" + fmtVal(v))
		}
	}
	return d
}

func fmtVal(v any) string {
	return strconv.Quote(fmt.Sprintf("%v", v))
}
