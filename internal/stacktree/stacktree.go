// Package stacktree implements the folded-stack aggregator at the heart of
// the profiler: a compact, insertion-ordered, self-adjusting prefix tree
// keyed on frame labels. Every sampler in this module (sync and async)
// folds one stack label into a Tree per sample; Dump renders the tree back
// out in the line-oriented folded-stack format flamegraph renderers expect.
//
// Grounded directly in the teacher's nodetree package structure (a tree of
// named nodes with a cheap serialization) but using a singly-linked sibling
// list with move-to-front reordering instead of a children slice — the
// move-to-front heuristic amortizes append cost for the heavily skewed
// sibling distributions real call stacks produce.
package stacktree

import (
	"bytes"
	"io"
	"strconv"
	"strings"
)

const rootName = "root"

// Node is one entry of the prefix tree. Sibling lists are singly linked and
// never indexed by hash, keeping per-node overhead at one string and two
// counters plus two pointers.
type Node struct {
	Name    string
	Cnt     uint64
	AccCnt  uint64
	Child   *Node
	Sibling *Node
}

// Tree is a rooted stacktree. The zero value is not usable; use New.
type Tree struct {
	root *Node
}

// New returns an empty tree with just the root sentinel.
func New() *Tree {
	return &Tree{root: &Node{Name: rootName}}
}

// Root exposes the sentinel root node for read-only traversal by callers
// that need something Dump doesn't provide (e.g. tests asserting on Node
// fields directly).
func (t *Tree) Root() *Node {
	return t.root
}

// Insert folds label into the tree with weight 1. label is a semicolon
// delimited stack label, root-first.
func (t *Tree) Insert(label string) {
	t.InsertWeighted(label, 1)
}

// InsertWeighted folds label into the tree with an explicit weight — used
// by the native-call tracer, which derives a weight from a measured call
// duration rather than a flat 1.
//
// For each label component, the node the walk is currently at has its
// AccCnt pre-incremented before the walk descends, since it sits on the
// path of everything rooted below it. The sibling list is then scanned
// for a matching name. While scanning, any time the sibling currently
// under consideration is heavier (higher AccCnt) than the one immediately
// before it, the two swap payloads in place — name, counters and child
// pointer move together, sibling links untouched — so a sibling that is
// heavier than its neighbor keeps drifting toward the front of the list
// as more samples land on it, including the neighbor it matches against
// when the match itself is found. The final component — the leaf of this
// insertion — receives both Cnt and AccCnt increments once the walk
// completes, since it both terminates the path and, by definition, passes
// through itself.
func (t *Tree) InsertWeighted(label string, weight uint64) {
	if weight == 0 {
		return
	}
	components := strings.Split(label, ";")
	if len(components) == 1 && components[0] == "" {
		return
	}

	node := t.root
	for _, s := range components {
		node.AccCnt += weight
		if node.Child == nil {
			child := &Node{Name: s}
			node.Child = child
			node = child
			continue
		}

		var prev, found *Node
		cur := node.Child
		for cur != nil {
			matched := cur.Name == s
			if prev != nil && prev.AccCnt < cur.AccCnt {
				prev.Name, cur.Name = cur.Name, prev.Name
				prev.Cnt, cur.Cnt = cur.Cnt, prev.Cnt
				prev.AccCnt, cur.AccCnt = cur.AccCnt, prev.AccCnt
				prev.Child, cur.Child = cur.Child, prev.Child
				if matched {
					found = prev
				}
			} else if matched {
				found = cur
			}
			if matched {
				break
			}
			prev = cur
			cur = cur.Sibling
		}

		if found != nil {
			node = found
		} else {
			sibling := &Node{Name: s}
			prev.Sibling = sibling
			node = sibling
		}
	}
	node.Cnt += weight
	node.AccCnt += weight
}

// Dump performs a depth-first, pre-order traversal of the tree and writes
// one folded-stack line per node with a non-zero Cnt. The last line carries
// no trailing newline. Dump never mutates the tree; callers that need to
// read a tree while a sampler might still be inserting into it must stop
// the sampler first.
func (t *Tree) Dump(w io.Writer) error {
	d := &dumper{w: w}
	err := d.walk(t.root, nil, true)
	if err != nil {
		return err
	}
	return d.err
}

// Dumps renders Dump's output to an in-memory string.
func (t *Tree) Dumps() string {
	var buf bytes.Buffer
	_ = t.Dump(&buf)
	return buf.String()
}

type dumper struct {
	w       io.Writer
	err     error
	wrote   bool
	lineBuf bytes.Buffer
}

// walk mirrors the teacher's original recursive Save(): descend into Child
// with this node's name pushed onto path, emit if Cnt>0, pop the name, then
// descend into Sibling with the name already popped — siblings are peers,
// not descendants, of this node. isRoot is threaded explicitly rather than
// inferred from the node's name, since a frame can legitimately be named
// "root".
func (d *dumper) walk(n *Node, path []string, isRoot bool) error {
	if n == nil || d.err != nil {
		return nil
	}
	if !isRoot {
		path = append(path, n.Name)
	}

	if err := d.walk(n.Child, path, false); err != nil {
		return err
	}

	if n.Cnt > 0 {
		d.emit(path, n.Cnt)
	}

	if !isRoot {
		path = path[:len(path)-1]
	}

	return d.walk(n.Sibling, path, isRoot)
}

func (d *dumper) emit(path []string, cnt uint64) {
	if d.err != nil {
		return
	}
	d.lineBuf.Reset()
	if d.wrote {
		d.lineBuf.WriteByte('\n')
	}
	d.lineBuf.WriteString(strings.Join(path, ";"))
	d.lineBuf.WriteByte(' ')
	d.lineBuf.WriteString(strconv.FormatUint(cnt, 10))
	if _, err := d.w.Write(d.lineBuf.Bytes()); err != nil {
		d.err = err
		return
	}
	d.wrote = true
}

// Destroy releases every node in the tree. Destroying the root must not
// recurse unboundedly on very deep sibling or child chains, so this walks
// the tree with an explicit worklist instead of relying on Go's garbage
// collector to unwind deeply nested pointer chains in one pass. Destroy is
// synchronous on the caller's thread and leaves the Tree unusable; callers
// that want to keep sampling allocate a fresh Tree instead.
func (t *Tree) Destroy() {
	if t.root == nil {
		return
	}
	work := []*Node{t.root}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		if n == nil {
			continue
		}
		if n.Child != nil {
			work = append(work, n.Child)
		}
		if n.Sibling != nil {
			work = append(work, n.Sibling)
		}
		n.Child = nil
		n.Sibling = nil
	}
	t.root = nil
}
