// Package bolt implements backend.Backend on go.etcd.io/bbolt, one bucket
// per spec.md §6 table, guarded by a github.com/gofrs/flock file lock so
// at most one process holds the database for writing (spec.md §5's
// single-writer model enforced at the OS level, not just in-process).
package bolt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/ugorji/go/codec"
	bolt "go.etcd.io/bbolt"

	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/kv"
)

type Turn = common.Turn
type Tick = common.Tick

var cborHandle codec.CborHandle

// Backend is a bbolt-backed backend.Backend. Open acquires an exclusive
// flock on a sidecar ".lock" file so a second process opening the same
// directory fails fast instead of corrupting the database.
type Backend struct {
	db   *bolt.DB
	lock *flock.Flock
}

// Open opens (creating if needed) a bbolt database at path, locks it, and
// ensures every table in kv.AllTables exists as a bucket.
func Open(path string) (*Backend, error) {
	lockPath := path + ".lock"
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("backend/bolt: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("backend/bolt: %s is already locked by another process", path)
	}

	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("backend/bolt: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, table := range kv.AllTables {
			if _, err := tx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		fl.Unlock()
		return nil, fmt.Errorf("backend/bolt: create buckets: %w", err)
	}

	return &Backend{db: db, lock: fl}, nil
}

var _ backend.Backend = (*Backend)(nil)

func be64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeBe64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &cborHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte, out any) error {
	dec := codec.NewDecoderBytes(b, &cborHandle)
	return dec.Decode(out)
}

// nodeKey is graph\x00node\x00branch\x00turn_be64 tick_be64 (the two
// big-endian integers follow each other with no separator).
func nodeKey(graph, node, branch string, turn Turn, tick Tick) []byte {
	var buf bytes.Buffer
	buf.WriteString(graph)
	buf.WriteByte(0)
	buf.WriteString(node)
	buf.WriteByte(0)
	buf.WriteString(branch)
	buf.WriteByte(0)
	buf.Write(be64(int64(turn)))
	buf.Write(be64(int64(tick)))
	return buf.Bytes()
}

func edgeKey(graph, orig, dest string, idx int, branch string, turn Turn, tick Tick) []byte {
	var buf bytes.Buffer
	buf.WriteString(graph)
	buf.WriteByte(0)
	buf.WriteString(orig)
	buf.WriteByte(0)
	buf.WriteString(dest)
	buf.WriteByte(0)
	buf.Write(be64(int64(idx)))
	buf.WriteString(branch)
	buf.WriteByte(0)
	buf.Write(be64(int64(turn)))
	buf.Write(be64(int64(tick)))
	return buf.Bytes()
}

func valKey(graph, entity, key, branch string, turn Turn, tick Tick) []byte {
	var buf bytes.Buffer
	buf.WriteString(graph)
	buf.WriteByte(0)
	buf.WriteString(entity)
	buf.WriteByte(0)
	buf.WriteString(key)
	buf.WriteByte(0)
	buf.WriteString(branch)
	buf.WriteByte(0)
	buf.Write(be64(int64(turn)))
	buf.Write(be64(int64(tick)))
	return buf.Bytes()
}

func keyframeKey(graph, branch string, turn Turn, tick Tick) []byte {
	var buf bytes.Buffer
	buf.WriteString(graph)
	buf.WriteByte(0)
	buf.WriteString(branch)
	buf.WriteByte(0)
	buf.Write(be64(int64(turn)))
	buf.Write(be64(int64(tick)))
	return buf.Bytes()
}

func (b *Backend) AllBranches() ([]backend.BranchRow, error) {
	var out []backend.BranchRow
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Branches)).ForEach(func(k, v []byte) error {
			var row backend.BranchRow
			if err := decode(v, &row); err != nil {
				return err
			}
			out = append(out, row)
			return nil
		})
	})
	return out, err
}

func (b *Backend) AllGraphs() ([]backend.GraphRow, error) {
	var out []backend.GraphRow
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Graphs)).ForEach(func(k, v []byte) error {
			out = append(out, backend.GraphRow{Graph: string(k), Type: string(v)})
			return nil
		})
	})
	return out, err
}

func (b *Backend) TurnsDump() ([]backend.TurnRow, error) {
	var out []backend.TurnRow
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Turns)).ForEach(func(k, v []byte) error {
			var row backend.TurnRow
			if err := decode(v, &row); err != nil {
				return err
			}
			out = append(out, row)
			return nil
		})
	})
	return out, err
}

func (b *Backend) KeyframesList() ([]backend.KeyframeRow, error) {
	var out []backend.KeyframeRow
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Keyframes)).ForEach(func(k, v []byte) error {
			var row backend.KeyframeRow
			if err := decode(v, &row); err != nil {
				return err
			}
			row.NodesBlob, row.EdgesBlob, row.ValsBlob = nil, nil, nil
			out = append(out, row)
			return nil
		})
	})
	return out, err
}

func (b *Backend) GetKeyframe(graph, branch string, turn Turn, tick Tick) (backend.KeyframeRow, bool, error) {
	var row backend.KeyframeRow
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(kv.Keyframes)).Get(keyframeKey(graph, branch, turn, tick))
		if v == nil {
			return nil
		}
		found = true
		return decode(v, &row)
	})
	return row, found, err
}

func (b *Backend) PlansDump() ([]backend.PlanRow, error) {
	var out []backend.PlanRow
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Plans)).ForEach(func(k, v []byte) error {
			var row backend.PlanRow
			if err := decode(v, &row); err != nil {
				return err
			}
			out = append(out, row)
			return nil
		})
	})
	return out, err
}

func (b *Backend) PlanTicksDump() ([]backend.PlanTickRow, error) {
	var out []backend.PlanTickRow
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.PlanTicks)).ForEach(func(k, v []byte) error {
			var row backend.PlanTickRow
			if err := decode(v, &row); err != nil {
				return err
			}
			out = append(out, row)
			return nil
		})
	})
	return out, err
}

// withinBounds reconstructs (turn,tick) from the trailing 16 bytes of a
// composite key and reports whether it falls in [turnFrom,tickFrom,
// turnTo,tickTo].
func withinBounds(k []byte, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) (Turn, Tick, bool) {
	if len(k) < 16 {
		return 0, 0, false
	}
	turn := Turn(decodeBe64(k[len(k)-16 : len(k)-8]))
	tick := Tick(decodeBe64(k[len(k)-8:]))
	ok := common.CompareTT(turn, tick, turnFrom, tickFrom) >= 0 && common.CompareTT(turn, tick, turnTo, tickTo) <= 0
	return turn, tick, ok
}

func (b *Backend) LoadNodes(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.NodeRow, error) {
	var out []backend.NodeRow
	prefix := []byte(graph + "\x00")
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(kv.Nodes)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var row backend.NodeRow
			if err := decode(v, &row); err != nil {
				return err
			}
			if row.Branch != branch {
				continue
			}
			if _, _, ok := withinBounds(k, turnFrom, tickFrom, turnTo, tickTo); ok {
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

func (b *Backend) LoadEdges(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.EdgeRow, error) {
	var out []backend.EdgeRow
	prefix := []byte(graph + "\x00")
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(kv.Edges)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var row backend.EdgeRow
			if err := decode(v, &row); err != nil {
				return err
			}
			if row.Branch != branch {
				continue
			}
			if _, _, ok := withinBounds(k, turnFrom, tickFrom, turnTo, tickTo); ok {
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

func (b *Backend) LoadGraphVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.GraphValRow, error) {
	var out []backend.GraphValRow
	prefix := []byte(graph + "\x00")
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(kv.GraphVal)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var row backend.GraphValRow
			if err := decode(v, &row); err != nil {
				return err
			}
			if row.Branch != branch {
				continue
			}
			if _, _, ok := withinBounds(k, turnFrom, tickFrom, turnTo, tickTo); ok {
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

func (b *Backend) LoadNodeVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.NodeValRow, error) {
	var out []backend.NodeValRow
	prefix := []byte(graph + "\x00")
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(kv.NodeVal)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var row backend.NodeValRow
			if err := decode(v, &row); err != nil {
				return err
			}
			if row.Branch != branch {
				continue
			}
			if _, _, ok := withinBounds(k, turnFrom, tickFrom, turnTo, tickTo); ok {
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

func (b *Backend) LoadEdgeVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.EdgeValRow, error) {
	var out []backend.EdgeValRow
	prefix := []byte(graph + "\x00")
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(kv.EdgeVal)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var row backend.EdgeValRow
			if err := decode(v, &row); err != nil {
				return err
			}
			if row.Branch != branch {
				continue
			}
			if _, _, ok := withinBounds(k, turnFrom, tickFrom, turnTo, tickTo); ok {
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

func (b *Backend) SetNode(row backend.NodeRow) error {
	v, err := encode(row)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Nodes)).Put(nodeKey(row.Graph, row.Node, row.Branch, row.Turn, row.Tick), v)
	})
}

func (b *Backend) SetEdge(row backend.EdgeRow) error {
	v, err := encode(row)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Edges)).Put(edgeKey(row.Graph, row.Orig, row.Dest, row.Idx, row.Branch, row.Turn, row.Tick), v)
	})
}

func (b *Backend) SetGraphVal(row backend.GraphValRow) error {
	v, err := encode(row)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.GraphVal)).Put(valKey(row.Graph, "", row.Key, row.Branch, row.Turn, row.Tick), v)
	})
}

func (b *Backend) SetNodeVal(row backend.NodeValRow) error {
	v, err := encode(row)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.NodeVal)).Put(valKey(row.Graph, row.Node, row.Key, row.Branch, row.Turn, row.Tick), v)
	})
}

func (b *Backend) SetEdgeVal(row backend.EdgeValRow) error {
	v, err := encode(row)
	if err != nil {
		return err
	}
	entity := row.Orig + "\x00" + row.Dest
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.EdgeVal)).Put(valKey(row.Graph, entity, row.Key, row.Branch, row.Turn, row.Tick), v)
	})
}

// DelTime removes every row of kind for graph/branch at exactly
// (turn,tick); since the bucket key embeds entity identity ahead of
// branch/turn/tick, this scans the whole bucket for graph's prefix. Plan
// contradictions and unload truncations are rare enough for this not to
// matter; a secondary (branch,turn,tick)->keys index would only help if
// they became hot paths.
func (b *Backend) DelTime(kind, graph, branch string, turn Turn, tick Tick) error {
	var table string
	switch kind {
	case "nodes":
		table = kv.Nodes
	case "edges":
		table = kv.Edges
	case "graph_val":
		table = kv.GraphVal
	case "node_val":
		table = kv.NodeVal
	case "edge_val":
		table = kv.EdgeVal
	default:
		return fmt.Errorf("backend/bolt: unknown kind %q", kind)
	}
	prefix := []byte(graph + "\x00")
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(table))
		c := bkt.Cursor()
		var dead [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			t, tk, ok := withinBounds(k, turn, tick, turn, tick)
			if !ok || t != turn || tk != tick {
				continue
			}
			dead = append(dead, append([]byte(nil), k...))
		}
		for _, k := range dead {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) NewBranch(row backend.BranchRow) error {
	v, err := encode(row)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Branches)).Put([]byte(row.Branch), v)
	})
}

func (b *Backend) NewGraph(graph, typ string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Graphs)).Put([]byte(graph), []byte(typ))
	})
}

func (b *Backend) DelGraph(graph string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Graphs)).Delete([]byte(graph))
	})
}

func (b *Backend) KeyframesInsertMany(rows []backend.KeyframeRow) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(kv.Keyframes))
		for _, row := range rows {
			v, err := encode(row)
			if err != nil {
				return err
			}
			if err := bkt.Put(keyframeKey(row.Graph, row.Branch, row.Turn, row.Tick), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) PlansInsertMany(rows []backend.PlanRow) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(kv.Plans))
		for _, row := range rows {
			v, err := encode(row)
			if err != nil {
				return err
			}
			if err := bkt.Put(be64(int64(row.PlanID)), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) PlanTicksInsertMany(rows []backend.PlanTickRow) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(kv.PlanTicks))
		for _, row := range rows {
			v, err := encode(row)
			if err != nil {
				return err
			}
			key := append(be64(int64(row.PlanID)), append(be64(int64(row.Turn)), be64(int64(row.Tick))...)...)
			if err := bkt.Put(key, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) SetBranch(branch string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(kv.Globals)).Put([]byte("branch"), []byte(branch))
	})
}

func (b *Backend) SetTurn(branch string, turn Turn, tick Tick) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(kv.Globals))
		if err := bkt.Put([]byte("turn"), be64(int64(turn))); err != nil {
			return err
		}
		return bkt.Put([]byte("tick"), be64(int64(tick)))
	})
}

func (b *Backend) Commit() error {
	// bbolt commits each Update transaction as it completes; Commit is a
	// no-op sync point kept for interface symmetry with backends that
	// batch writes into a single transaction per commit() call.
	return nil
}

func (b *Backend) Close() error {
	err := b.db.Close()
	if unlockErr := b.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}
