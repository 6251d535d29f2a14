package keyframe

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"
	"github.com/ugorji/go/codec"
	"golang.org/x/crypto/blake2b"

	"github.com/coldbrook-sim/allegedb/kv"
)

// wireSnapshot is the on-disk shape of a Snapshot: node/edge existence
// is a compact RoaringBitmap over interned ids instead of a Go map,
// since a keyframe may enumerate a large fraction of a graph's
// vertices; attribute maps are left as plain maps since they don't
// compress as well as integer sets do.
type wireSnapshot struct {
	Graph, Branch      string
	Turn, Tick         int64
	NodeBitmap         []byte
	EdgeBitmap         []byte
	EdgeIDToKey        map[uint32]string
	GraphVal           map[string]any
	NodeVal            map[string]map[string]any
	EdgeVal            map[string]map[string]any
}

var cborHandle codec.CborHandle

// EncodeBlob serializes snap into a compressed, checksummed blob:
// existence sets become RoaringBitmap bytes over intern's ids, the rest
// is CBOR-encoded (ugorji/go/codec) and the whole thing is compressed
// with zstd. Returns the compressed bytes and a blake2b-512 checksum of
// them, a corruption check independent of the content-addressing Hash.
func EncodeBlob(snap *Snapshot, intern *kv.Intern) (blob []byte, checksum [64]byte, err error) {
	nodeBM := roaring.New()
	for node := range snap.Nodes {
		nodeBM.Add(intern.ID(node))
	}
	nodeBMBytes, err := nodeBM.ToBytes()
	if err != nil {
		return nil, checksum, fmt.Errorf("keyframe: encode node bitmap: %w", err)
	}

	edgeBM := roaring.New()
	edgeIDToKey := make(map[uint32]string, len(snap.Edges))
	for ek := range snap.Edges {
		id := intern.ID(ek)
		edgeBM.Add(id)
		edgeIDToKey[id] = ek
	}
	edgeBMBytes, err := edgeBM.ToBytes()
	if err != nil {
		return nil, checksum, fmt.Errorf("keyframe: encode edge bitmap: %w", err)
	}

	w := wireSnapshot{
		Graph: snap.Graph, Branch: snap.Branch,
		Turn: int64(snap.Turn), Tick: int64(snap.Tick),
		NodeBitmap: nodeBMBytes, EdgeBitmap: edgeBMBytes, EdgeIDToKey: edgeIDToKey,
		GraphVal: snap.GraphVal, NodeVal: snap.NodeVal, EdgeVal: snap.EdgeVal,
	}

	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &cborHandle)
	if err := enc.Encode(&w); err != nil {
		return nil, checksum, fmt.Errorf("keyframe: cbor encode: %w", err)
	}

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, checksum, fmt.Errorf("keyframe: new zstd writer: %w", err)
	}
	compressed := zw.EncodeAll(buf.Bytes(), nil)
	zw.Close()

	checksum = blake2b.Sum512(compressed)
	return compressed, checksum, nil
}

// DecodeBlob reverses EncodeBlob, verifying checksum before touching the
// compressed payload.
func DecodeBlob(blob []byte, checksum [64]byte, intern *kv.Intern) (*Snapshot, error) {
	if blake2b.Sum512(blob) != checksum {
		return nil, fmt.Errorf("keyframe: blob failed integrity check")
	}

	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("keyframe: new zstd reader: %w", err)
	}
	defer zr.Close()
	raw, err := zr.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("keyframe: zstd decode: %w", err)
	}

	var w wireSnapshot
	dec := codec.NewDecoderBytes(raw, &cborHandle)
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("keyframe: cbor decode: %w", err)
	}

	nodeBM := roaring.New()
	if err := nodeBM.FromBuffer(w.NodeBitmap); err != nil {
		return nil, fmt.Errorf("keyframe: decode node bitmap: %w", err)
	}
	edgeBM := roaring.New()
	if err := edgeBM.FromBuffer(w.EdgeBitmap); err != nil {
		return nil, fmt.Errorf("keyframe: decode edge bitmap: %w", err)
	}

	snap := newSnapshot(w.Graph, w.Branch, Turn(w.Turn), Tick(w.Tick))
	it := nodeBM.Iterator()
	for it.HasNext() {
		id := it.Next()
		name, ok := intern.Name(id)
		if ok {
			snap.Nodes[name] = true
		}
	}
	eit := edgeBM.Iterator()
	for eit.HasNext() {
		id := eit.Next()
		if ek, ok := w.EdgeIDToKey[id]; ok {
			snap.Edges[ek] = true
		}
	}
	snap.GraphVal = w.GraphVal
	snap.NodeVal = w.NodeVal
	snap.EdgeVal = w.EdgeVal
	return snap, nil
}

// BlobStore persists keyframe blobs to disk and memory-maps them for
// reading: keyframes are immutable once flushed (spec.md §3 Lifecycles),
// so mmap avoids a read syscall on every delta-reconstruction access
// after the first.
type BlobStore struct {
	dir    string
	intern *kv.Intern

	mu     sync.Mutex
	mapped map[string]mmap.MMap
}

func NewBlobStore(dir string, intern *kv.Intern) *BlobStore {
	return &BlobStore{dir: dir, intern: intern, mapped: make(map[string]mmap.MMap)}
}

func (s *BlobStore) path(graph, branch string, turn Turn, tick Tick) string {
	return filepath.Join(s.dir, graph, branch, fmt.Sprintf("%d-%d.kf", turn, tick))
}

// Put writes snap's blob to disk, returning the path and checksum the
// caller should record alongside the keyframe row (spec.md §6 keyframes
// table).
func (s *BlobStore) Put(snap *Snapshot) (path string, checksum [64]byte, err error) {
	blob, sum, err := EncodeBlob(snap, s.intern)
	if err != nil {
		return "", sum, err
	}
	p := s.path(snap.Graph, snap.Branch, snap.Turn, snap.Tick)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", sum, fmt.Errorf("keyframe: mkdir: %w", err)
	}
	if err := os.WriteFile(p, blob, 0o644); err != nil {
		return "", sum, fmt.Errorf("keyframe: write blob: %w", err)
	}
	return p, sum, nil
}

// Get mmaps path (caching the mapping) and decodes the snapshot within
// it, verifying checksum.
func (s *BlobStore) Get(path string, checksum [64]byte) (*Snapshot, error) {
	s.mu.Lock()
	data, ok := s.mapped[path]
	s.mu.Unlock()
	if !ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("keyframe: open blob: %w", err)
		}
		defer f.Close()
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("keyframe: mmap blob: %w", err)
		}
		s.mu.Lock()
		s.mapped[path] = m
		s.mu.Unlock()
		data = m
	}
	return DecodeBlob(data, checksum, s.intern)
}

// Close unmaps every cached blob.
func (s *BlobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for path, m := range s.mapped {
		if err := m.Unmap(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("keyframe: unmap %s: %w", path, err)
		}
	}
	s.mapped = make(map[string]mmap.MMap)
	return firstErr
}
