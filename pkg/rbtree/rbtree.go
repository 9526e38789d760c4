// Package rbtree provides an ordered map implemented as a red-black tree
// whose nodes live in an index-addressed arena.
package rbtree

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"math"
)

// ErrNotFound is returned when a key is not present in the tree.
var ErrNotFound = errors.New("rbtree: key not found")

// Item is the key/value pair stored in each tree node.
type Item[K, V any] struct {
	Key   K
	Value V
}

// Allocator is the arena holding the nodes of one or more RBTree-s.
//
// Node #0 is reserved and plays the role of nil.
type Allocator[K, V any] struct {
	storage []node[K, V]
	gaps    map[uint32]bool
}

// NewAllocator creates a new allocator for RBTree's nodes.
func NewAllocator[K, V any]() *Allocator[K, V] {
	return &Allocator[K, V]{
		storage: []node[K, V]{},
		gaps:    map[uint32]bool{},
	}
}

// Size returns the currently allocated size.
func (allocator *Allocator[K, V]) Size() int {
	return len(allocator.storage)
}

// Used returns the number of nodes contained in the allocator.
func (allocator *Allocator[K, V]) Used() int {
	return len(allocator.storage) - len(allocator.gaps)
}

func (allocator *Allocator[K, V]) malloc() uint32 {
	if len(allocator.gaps) > 0 {
		var idx uint32

		for idx = range allocator.gaps {
			break
		}

		delete(allocator.gaps, idx)

		return idx
	}

	if len(allocator.storage) == 0 {
		// Zero is reserved.
		allocator.storage = append(allocator.storage, node[K, V]{})
	}

	nodeLen := len(allocator.storage)
	if nodeLen >= negativeLimitNode-1 {
		// [math.MaxUint32] is reserved.
		panic("rbtree: allocator exhausted the uint32 index space")
	}

	allocator.storage = append(allocator.storage, node[K, V]{})

	return uint32(nodeLen)
}

func (allocator *Allocator[K, V]) free(nodeIdx uint32) {
	if nodeIdx == 0 {
		panic("rbtree: node #0 is special and cannot be deallocated")
	}

	_, exists := allocator.gaps[nodeIdx]
	doAssert(!exists)

	allocator.storage[nodeIdx] = node[K, V]{}
	allocator.gaps[nodeIdx] = true
}

// RBTree is a red-black tree with an API similar to C++ STL's map.
//
// Keys are unique; inserting an existing key replaces its value.
// Nodes reference each other by arena index, parent links included,
// so no node ever owns its parent.
type RBTree[K, V any] struct {
	allocator *Allocator[K, V]
	cmp       func(a, b K) int

	root uint32

	// The minimum and maximum nodes under the tree.
	minNode, maxNode uint32

	// Number of nodes under root, including the root.
	count int
}

// NewRBTree creates a tree ordered by the natural ordering of K.
func NewRBTree[K cmp.Ordered, V any](allocator *Allocator[K, V]) *RBTree[K, V] {
	return NewRBTreeFunc(allocator, cmp.Compare[K])
}

// NewRBTreeFunc creates a tree ordered by compare, which must define a
// strict weak ordering and return a negative, zero or positive number.
func NewRBTreeFunc[K, V any](allocator *Allocator[K, V], compare func(a, b K) int) *RBTree[K, V] {
	return &RBTree[K, V]{allocator: allocator, cmp: compare}
}

func (tree *RBTree[K, V]) storage() []node[K, V] {
	return tree.allocator.storage
}

// Allocator returns the bound nodes allocator.
func (tree *RBTree[K, V]) Allocator() *Allocator[K, V] {
	return tree.allocator
}

// Len returns the number of elements in the tree.
func (tree *RBTree[K, V]) Len() int {
	return tree.count
}

// Erase removes all the nodes from the tree, returning them to the allocator.
func (tree *RBTree[K, V]) Erase() {
	nodes := make([]uint32, 0, tree.count)

	for it := tree.Min(); !it.Limit(); it = it.Next() {
		nodes = append(nodes, it.node)
	}

	for _, nd := range nodes {
		tree.allocator.free(nd)
	}

	tree.root = 0
	tree.minNode = 0
	tree.maxNode = 0
	tree.count = 0
}

// Get returns the value bound to key.
func (tree *RBTree[K, V]) Get(key K) (V, error) {
	nodeIdx, exact := tree.findGE(key)
	if !exact {
		var zero V

		return zero, fmt.Errorf("%w: %v", ErrNotFound, key)
	}

	return tree.storage()[nodeIdx].item.Value, nil
}

// Contains reports whether key is bound in the tree.
func (tree *RBTree[K, V]) Contains(key K) bool {
	_, exact := tree.findGE(key)

	return exact
}

// Min creates an iterator that points to the minimum item in the tree.
// If the tree is empty, returns Limit().
func (tree *RBTree[K, V]) Min() Iterator[K, V] {
	return Iterator[K, V]{tree, tree.minNode}
}

// Max creates an iterator that points at the maximum item in the tree.
//
// If the tree is empty, returns NegativeLimit().
func (tree *RBTree[K, V]) Max() Iterator[K, V] {
	if tree.maxNode == 0 {
		return Iterator[K, V]{tree, negativeLimitNode}
	}

	return Iterator[K, V]{tree, tree.maxNode}
}

// Limit creates an iterator that points beyond the maximum item in the tree.
func (tree *RBTree[K, V]) Limit() Iterator[K, V] {
	return Iterator[K, V]{tree, 0}
}

// NegativeLimit creates an iterator that points before the minimum item in the tree.
func (tree *RBTree[K, V]) NegativeLimit() Iterator[K, V] {
	return Iterator[K, V]{tree, negativeLimitNode}
}

// FindGE finds the smallest element N such that N >= key, and returns the
// iterator pointing to the element. If no such element is found,
// returns tree.Limit().
func (tree *RBTree[K, V]) FindGE(key K) Iterator[K, V] {
	nodeIdx, _ := tree.findGE(key)

	return Iterator[K, V]{tree, nodeIdx}
}

// FindLE finds the largest element N such that N <= key, and returns the
// iterator pointing to the element. If no such element is found,
// returns tree.NegativeLimit().
func (tree *RBTree[K, V]) FindLE(key K) Iterator[K, V] {
	nodeIdx, exact := tree.findGE(key)
	if exact {
		return Iterator[K, V]{tree, nodeIdx}
	}

	return tree.before(nodeIdx)
}

// FindGT finds the smallest element N such that N > key.
// If no such element is found, returns tree.Limit().
func (tree *RBTree[K, V]) FindGT(key K) Iterator[K, V] {
	nodeIdx, exact := tree.findGE(key)
	if exact {
		return Iterator[K, V]{tree, doNext(nodeIdx, tree.storage())}
	}

	return Iterator[K, V]{tree, nodeIdx}
}

// FindLT finds the largest element N such that N < key.
// If no such element is found, returns tree.NegativeLimit().
func (tree *RBTree[K, V]) FindLT(key K) Iterator[K, V] {
	nodeIdx, _ := tree.findGE(key)

	return tree.before(nodeIdx)
}

// before returns the iterator preceding the node found by findGE.
func (tree *RBTree[K, V]) before(nodeIdx uint32) Iterator[K, V] {
	if nodeIdx != 0 {
		return Iterator[K, V]{tree, doPrev(nodeIdx, tree.storage())}
	}

	if tree.maxNode == 0 {
		return Iterator[K, V]{tree, negativeLimitNode}
	}

	return Iterator[K, V]{tree, tree.maxNode}
}

// Floor returns the item with the largest key <= key.
func (tree *RBTree[K, V]) Floor(key K) (Item[K, V], bool) {
	return tree.FindLE(key).get()
}

// Ceiling returns the item with the smallest key >= key.
func (tree *RBTree[K, V]) Ceiling(key K) (Item[K, V], bool) {
	return tree.FindGE(key).get()
}

// Predecessor returns the item with the largest key strictly below key.
func (tree *RBTree[K, V]) Predecessor(key K) (Item[K, V], bool) {
	return tree.FindLT(key).get()
}

// Successor returns the item with the smallest key strictly above key.
func (tree *RBTree[K, V]) Successor(key K) (Item[K, V], bool) {
	return tree.FindGT(key).get()
}

// First returns the item with the smallest key.
func (tree *RBTree[K, V]) First() (Item[K, V], bool) {
	return tree.Min().get()
}

// Last returns the item with the largest key.
func (tree *RBTree[K, V]) Last() (Item[K, V], bool) {
	return tree.Max().get()
}

// All returns an iterator over the items in ascending key order.
// Every call starts a fresh traversal. The tree must not be modified
// while the sequence is being consumed.
func (tree *RBTree[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for it := tree.Min(); !it.Limit(); it = it.Next() {
			item := it.Item()
			if !yield(item.Key, item.Value) {
				return
			}
		}
	}
}

// Insert binds value to key. If key was already present, its previous value
// is returned together with true.
func (tree *RBTree[K, V]) Insert(key K, value V) (V, bool) {
	nodeIdx, existed := tree.doInsert(key)
	alloc := tree.storage()

	if existed {
		prev := alloc[nodeIdx].item.Value
		alloc[nodeIdx].item.Value = value

		return prev, true
	}

	alloc[nodeIdx].item.Value = value
	tree.rebalanceInsert(nodeIdx)

	var zero V

	return zero, false
}

// Delete removes key from the tree and returns the value bound to it.
func (tree *RBTree[K, V]) Delete(key K) (V, error) {
	nodeIdx, exact := tree.findGE(key)
	if !exact {
		var zero V

		return zero, fmt.Errorf("%w: %v", ErrNotFound, key)
	}

	value := tree.storage()[nodeIdx].item.Value
	tree.doDelete(nodeIdx)

	return value, nil
}

// DeleteWithIterator deletes the current item.
//
// REQUIRES: !it.Limit() && !it.NegativeLimit().
func (tree *RBTree[K, V]) DeleteWithIterator(it Iterator[K, V]) {
	doAssert(!it.Limit() && !it.NegativeLimit())
	tree.doDelete(it.node)
}

// ReplaceKey moves the value bound to oldKey under newKey.
//
// The old binding is deleted and the value is reinserted, so a value already
// bound to newKey is overwritten.
func (tree *RBTree[K, V]) ReplaceKey(oldKey, newKey K) error {
	value, err := tree.Delete(oldKey)
	if err != nil {
		return err
	}

	tree.Insert(newKey, value)

	return nil
}

// Iterator allows scanning tree elements in sort order.
//
// Iterator invalidation rule is the same as C++ std::map<>'s. That
// is, if you delete the element that an iterator points to, the
// iterator becomes invalid. For other operation types, the iterator
// remains valid.
type Iterator[K, V any] struct {
	tree *RBTree[K, V]
	node uint32
}

// Equal checks for the underlying nodes equality.
func (it Iterator[K, V]) Equal(other Iterator[K, V]) bool {
	return it.node == other.node
}

// Limit checks if the iterator points beyond the max element in the tree.
func (it Iterator[K, V]) Limit() bool {
	return it.node == 0
}

// Min checks if the iterator points to the minimum element in the tree.
func (it Iterator[K, V]) Min() bool {
	return it.node == it.tree.minNode
}

// Max checks if the iterator points to the maximum element in the tree.
func (it Iterator[K, V]) Max() bool {
	return it.node == it.tree.maxNode
}

// NegativeLimit checks if the iterator points before the minimum element in the tree.
func (it Iterator[K, V]) NegativeLimit() bool {
	return it.node == negativeLimitNode
}

// Valid reports whether the iterator points at an element.
func (it Iterator[K, V]) Valid() bool {
	return !it.Limit() && !it.NegativeLimit()
}

// Item returns the current element. The value may be mutated in place;
// the key must not be changed.
//
// The result is nil if it.Limit() || it.NegativeLimit().
func (it Iterator[K, V]) Item() *Item[K, V] {
	if !it.Valid() {
		return nil
	}

	return &it.tree.storage()[it.node].item
}

func (it Iterator[K, V]) get() (Item[K, V], bool) {
	item := it.Item()
	if item == nil {
		return Item[K, V]{}, false
	}

	return *item, true
}

// Next creates a new iterator that points to the successor of the current element.
//
// REQUIRES: !it.Limit().
func (it Iterator[K, V]) Next() Iterator[K, V] {
	doAssert(!it.Limit())

	if it.NegativeLimit() {
		return Iterator[K, V]{it.tree, it.tree.minNode}
	}

	return Iterator[K, V]{it.tree, doNext(it.node, it.tree.storage())}
}

// Prev creates a new iterator that points to the predecessor of the current
// node.
//
// REQUIRES: !it.NegativeLimit().
func (it Iterator[K, V]) Prev() Iterator[K, V] {
	doAssert(!it.NegativeLimit())

	if !it.Limit() {
		return Iterator[K, V]{it.tree, doPrev(it.node, it.tree.storage())}
	}

	if it.tree.maxNode == 0 {
		return Iterator[K, V]{it.tree, negativeLimitNode}
	}

	return Iterator[K, V]{it.tree, it.tree.maxNode}
}

func doAssert(condition bool) {
	if !condition {
		panic("rbtree internal assertion failed")
	}
}

const (
	red               = false
	black             = true
	negativeLimitNode = math.MaxUint32
)

type node[K, V any] struct {
	item                Item[K, V]
	parent, left, right uint32
	color               bool // Black or red.
}

// Internal node attribute accessors.
func getColor[K, V any](nodeIdx uint32, alloc []node[K, V]) bool {
	if nodeIdx == 0 {
		return black
	}

	return alloc[nodeIdx].color
}

func isLeftChild[K, V any](nodeIdx uint32, alloc []node[K, V]) bool {
	return nodeIdx == alloc[alloc[nodeIdx].parent].left
}

func isRightChild[K, V any](nodeIdx uint32, alloc []node[K, V]) bool {
	return nodeIdx == alloc[alloc[nodeIdx].parent].right
}

func sibling[K, V any](nodeIdx uint32, alloc []node[K, V]) uint32 {
	doAssert(alloc[nodeIdx].parent != 0)

	if isLeftChild(nodeIdx, alloc) {
		return alloc[alloc[nodeIdx].parent].right
	}

	return alloc[alloc[nodeIdx].parent].left
}

// doNext returns the minimum node that's larger than nodeIdx, or 0.
func doNext[K, V any](nodeIdx uint32, alloc []node[K, V]) uint32 {
	if alloc[nodeIdx].right != 0 {
		cursor := alloc[nodeIdx].right

		for alloc[cursor].left != 0 {
			cursor = alloc[cursor].left
		}

		return cursor
	}

	for nodeIdx != 0 {
		parentIdx := alloc[nodeIdx].parent
		if parentIdx == 0 {
			return 0
		}

		if isLeftChild(nodeIdx, alloc) {
			return parentIdx
		}

		nodeIdx = parentIdx
	}

	return 0
}

// doPrev returns the maximum node that's smaller than nodeIdx, or negativeLimitNode.
func doPrev[K, V any](nodeIdx uint32, alloc []node[K, V]) uint32 {
	if alloc[nodeIdx].left != 0 {
		return maxPredecessor(nodeIdx, alloc)
	}

	for nodeIdx != 0 {
		parentIdx := alloc[nodeIdx].parent
		if parentIdx == 0 {
			break
		}

		if isRightChild(nodeIdx, alloc) {
			return parentIdx
		}

		nodeIdx = parentIdx
	}

	return negativeLimitNode
}

// maxPredecessor returns the rightmost node of the left subtree of nodeIdx.
func maxPredecessor[K, V any](nodeIdx uint32, alloc []node[K, V]) uint32 {
	doAssert(alloc[nodeIdx].left != 0)

	cursor := alloc[nodeIdx].left

	for alloc[cursor].right != 0 {
		cursor = alloc[cursor].right
	}

	return cursor
}

// Private methods.

func (tree *RBTree[K, V]) recomputeMinNode() {
	alloc := tree.storage()
	tree.minNode = tree.root

	if tree.minNode != 0 {
		for alloc[tree.minNode].left != 0 {
			tree.minNode = alloc[tree.minNode].left
		}
	}
}

func (tree *RBTree[K, V]) recomputeMaxNode() {
	alloc := tree.storage()
	tree.maxNode = tree.root

	if tree.maxNode != 0 {
		for alloc[tree.maxNode].right != 0 {
			tree.maxNode = alloc[tree.maxNode].right
		}
	}
}

// doInsert returns the node bound to key, creating a red leaf when the key
// is new. The second result is true when the node already existed.
func (tree *RBTree[K, V]) doInsert(key K) (uint32, bool) {
	if tree.root == 0 {
		nodeIdx := tree.allocator.malloc()
		tree.storage()[nodeIdx].item.Key = key
		tree.root = nodeIdx
		tree.minNode = nodeIdx
		tree.maxNode = nodeIdx
		tree.count++

		return nodeIdx, false
	}

	parent := tree.root
	goesLeft := false
	alloc := tree.storage()

	for {
		comp := tree.cmp(key, alloc[parent].item.Key)
		if comp == 0 {
			return parent, true
		}

		goesLeft = comp < 0

		var next uint32
		if goesLeft {
			next = alloc[parent].left
		} else {
			next = alloc[parent].right
		}

		if next == 0 {
			break
		}

		parent = next
	}

	nodeIdx := tree.allocator.malloc()
	alloc = tree.storage()

	alloc[nodeIdx].item.Key = key
	alloc[nodeIdx].parent = parent
	alloc[nodeIdx].color = red
	tree.count++

	if goesLeft {
		alloc[parent].left = nodeIdx

		if parent == tree.minNode {
			tree.minNode = nodeIdx
		}
	} else {
		alloc[parent].right = nodeIdx

		if parent == tree.maxNode {
			tree.maxNode = nodeIdx
		}
	}

	return nodeIdx, false
}

// rebalanceInsert restores the red-black properties after nodeIdx was
// attached as a red leaf.
func (tree *RBTree[K, V]) rebalanceInsert(nodeIdx uint32) {
	alloc := tree.storage()
	alloc[nodeIdx].color = red

	for {
		parent := alloc[nodeIdx].parent

		// Case 1: N is at the root.
		if parent == 0 {
			alloc[nodeIdx].color = black

			return
		}

		// Case 2: the parent is black, so the tree already
		// satisfies the RB properties.
		if alloc[parent].color == black {
			return
		}

		// Case 3: parent and uncle are both red.
		// Then paint both black and make grandparent red.
		grandparent := alloc[parent].parent

		var uncle uint32
		if isLeftChild(parent, alloc) {
			uncle = alloc[grandparent].right
		} else {
			uncle = alloc[grandparent].left
		}

		if getColor(uncle, alloc) == red {
			alloc[parent].color = black
			alloc[uncle].color = black
			alloc[grandparent].color = red
			nodeIdx = grandparent

			continue
		}

		// Case 4: parent is red, uncle is black, N is an inner grandchild.
		if isRightChild(nodeIdx, alloc) && isLeftChild(parent, alloc) {
			tree.rotateLeft(parent)
			nodeIdx = alloc[nodeIdx].left

			continue
		}

		if isLeftChild(nodeIdx, alloc) && isRightChild(parent, alloc) {
			tree.rotateRight(parent)
			nodeIdx = alloc[nodeIdx].right

			continue
		}

		// Case 5: parent is red, uncle is black, N is an outer grandchild.
		alloc[parent].color = black
		alloc[grandparent].color = red

		if isLeftChild(nodeIdx, alloc) {
			tree.rotateRight(grandparent)
		} else {
			tree.rotateLeft(grandparent)
		}

		return
	}
}

// findGE finds a node whose key >= key. The second result is true iff the
// node's key equals key. Returns (0, false) if all nodes in the tree are < key.
func (tree *RBTree[K, V]) findGE(key K) (uint32, bool) {
	alloc := tree.storage()
	nodeIdx := tree.root

	for {
		if nodeIdx == 0 {
			return 0, false
		}

		comp := tree.cmp(key, alloc[nodeIdx].item.Key)

		switch {
		case comp == 0:
			return nodeIdx, true
		case comp < 0:
			if alloc[nodeIdx].left == 0 {
				return nodeIdx, false
			}

			nodeIdx = alloc[nodeIdx].left
		default:
			if alloc[nodeIdx].right == 0 {
				succ := doNext(nodeIdx, alloc)
				if succ == 0 {
					return 0, false
				}

				return succ, tree.cmp(key, alloc[succ].item.Key) == 0
			}

			nodeIdx = alloc[nodeIdx].right
		}
	}
}

// doDelete removes nodeIdx from the tree.
func (tree *RBTree[K, V]) doDelete(nodeIdx uint32) {
	alloc := tree.storage()

	if alloc[nodeIdx].left != 0 && alloc[nodeIdx].right != 0 {
		pred := maxPredecessor(nodeIdx, alloc)
		tree.swapNodes(nodeIdx, pred)
	}

	doAssert(alloc[nodeIdx].left == 0 || alloc[nodeIdx].right == 0)

	child := alloc[nodeIdx].right
	if child == 0 {
		child = alloc[nodeIdx].left
	}

	if alloc[nodeIdx].color == black {
		alloc[nodeIdx].color = getColor(child, alloc)
		tree.rebalanceDelete(nodeIdx)
	}

	tree.replaceNode(nodeIdx, child)

	if alloc[nodeIdx].parent == 0 && child != 0 {
		alloc[child].color = black
	}

	tree.allocator.free(nodeIdx)
	tree.count--

	if tree.count == 0 {
		tree.minNode = 0
		tree.maxNode = 0

		return
	}

	if tree.minNode == nodeIdx {
		tree.recomputeMinNode()
	}

	if tree.maxNode == nodeIdx {
		tree.recomputeMaxNode()
	}
}

// swapNodes moves nodeIdx to the position of pred, its in-order predecessor,
// and pred to the position of nodeIdx. Items stay with their node indices
// apart from the one being deleted, so iterators on other items remain valid.
//
//nolint:gocognit,nestif // RB-tree node swapping is inherently complex with many index adjustments.
func (tree *RBTree[K, V]) swapNodes(nodeIdx, pred uint32) {
	doAssert(pred != nodeIdx)

	alloc := tree.storage()
	isLeft := isLeftChild(pred, alloc)
	tmp := alloc[pred]

	tree.replaceNode(nodeIdx, pred)
	alloc[pred].color = alloc[nodeIdx].color

	if tmp.parent == nodeIdx {
		// pred is the direct left child of nodeIdx.
		if isLeft {
			alloc[pred].left = nodeIdx
			alloc[pred].right = alloc[nodeIdx].right

			if alloc[pred].right != 0 {
				alloc[alloc[pred].right].parent = pred
			}
		} else {
			alloc[pred].left = alloc[nodeIdx].left

			if alloc[pred].left != 0 {
				alloc[alloc[pred].left].parent = pred
			}

			alloc[pred].right = nodeIdx
		}

		alloc[nodeIdx].parent = pred
	} else {
		alloc[pred].left = alloc[nodeIdx].left

		if alloc[pred].left != 0 {
			alloc[alloc[pred].left].parent = pred
		}

		alloc[pred].right = alloc[nodeIdx].right

		if alloc[pred].right != 0 {
			alloc[alloc[pred].right].parent = pred
		}

		if isLeft {
			alloc[tmp.parent].left = nodeIdx
		} else {
			alloc[tmp.parent].right = nodeIdx
		}

		alloc[nodeIdx].parent = tmp.parent
	}

	alloc[nodeIdx].item = tmp.item

	alloc[nodeIdx].left = tmp.left
	if alloc[nodeIdx].left != 0 {
		alloc[alloc[nodeIdx].left].parent = nodeIdx
	}

	alloc[nodeIdx].right = tmp.right
	if alloc[nodeIdx].right != 0 {
		alloc[alloc[nodeIdx].right].parent = nodeIdx
	}

	alloc[nodeIdx].color = tmp.color
}

// rebalanceDelete fixes the black-height deficit left by removing the black
// node nodeIdx, which is still linked in place.
func (tree *RBTree[K, V]) rebalanceDelete(nodeIdx uint32) {
	alloc := tree.storage()

	for alloc[nodeIdx].parent != 0 {
		parent := alloc[nodeIdx].parent

		// Red sibling: rotate it above the parent and retry with a black sibling.
		if getColor(sibling(nodeIdx, alloc), alloc) == red {
			alloc[parent].color = red
			alloc[sibling(nodeIdx, alloc)].color = black

			if isLeftChild(nodeIdx, alloc) {
				tree.rotateLeft(parent)
			} else {
				tree.rotateRight(parent)
			}
		}

		sib := sibling(nodeIdx, alloc)
		blackNephews := getColor(alloc[sib].left, alloc) == black &&
			getColor(alloc[sib].right, alloc) == black

		// Black parent, black sibling, black nephews: push the deficit up.
		if getColor(parent, alloc) == black && getColor(sib, alloc) == black && blackNephews {
			alloc[sib].color = red
			nodeIdx = parent

			continue
		}

		// Red parent, black sibling, black nephews: swap parent and sibling colors.
		if getColor(parent, alloc) == red && getColor(sib, alloc) == black && blackNephews {
			alloc[sib].color = red
			alloc[parent].color = black
		} else {
			tree.rotateRedNephew(nodeIdx)
		}

		return
	}
}

// rotateRedNephew handles a black sibling with at least one red child:
// a near red nephew is first rotated to the far side, then the parent is
// rotated toward nodeIdx.
func (tree *RBTree[K, V]) rotateRedNephew(nodeIdx uint32) {
	alloc := tree.storage()
	sib := sibling(nodeIdx, alloc)

	switch {
	case isLeftChild(nodeIdx, alloc) &&
		getColor(sib, alloc) == black &&
		getColor(alloc[sib].left, alloc) == red &&
		getColor(alloc[sib].right, alloc) == black:
		alloc[sib].color = red
		alloc[alloc[sib].left].color = black
		tree.rotateRight(sib)
	case isRightChild(nodeIdx, alloc) &&
		getColor(sib, alloc) == black &&
		getColor(alloc[sib].right, alloc) == red &&
		getColor(alloc[sib].left, alloc) == black:
		alloc[sib].color = red
		alloc[alloc[sib].right].color = black
		tree.rotateLeft(sib)
	}

	parent := alloc[nodeIdx].parent
	sib = sibling(nodeIdx, alloc)

	alloc[sib].color = getColor(parent, alloc)
	alloc[parent].color = black

	if isLeftChild(nodeIdx, alloc) {
		doAssert(getColor(alloc[sib].right, alloc) == red)
		alloc[alloc[sib].right].color = black
		tree.rotateLeft(parent)
	} else {
		doAssert(getColor(alloc[sib].left, alloc) == red)
		alloc[alloc[sib].left].color = black
		tree.rotateRight(parent)
	}
}

func (tree *RBTree[K, V]) replaceNode(oldn, newn uint32) {
	alloc := tree.storage()

	switch {
	case alloc[oldn].parent == 0:
		tree.root = newn
	case isLeftChild(oldn, alloc):
		alloc[alloc[oldn].parent].left = newn
	default:
		alloc[alloc[oldn].parent].right = newn
	}

	if newn != 0 {
		alloc[newn].parent = alloc[oldn].parent
	}
}

// rotate performs a tree rotation around pivot.
//
// Left rotation:
//
//	  X              Y
//	A   Y    =>    X   C
//	  B C        A B
//
// Right rotation:
//
//	    Y            X
//	  X   C  =>    A   Y
//	A B              B C
//
//nolint:dupword // ASCII art diagrams contain intentional repeated letters.
func (tree *RBTree[K, V]) rotate(pivot uint32, left bool) {
	alloc := tree.storage()

	var child, inner uint32
	if left {
		child = alloc[pivot].right
		inner = alloc[child].left
		alloc[pivot].right = inner
	} else {
		child = alloc[pivot].left
		inner = alloc[child].right
		alloc[pivot].left = inner
	}

	if inner != 0 {
		alloc[inner].parent = pivot
	}

	tree.replaceNode(pivot, child)

	if left {
		alloc[child].left = pivot
	} else {
		alloc[child].right = pivot
	}

	alloc[pivot].parent = child
}

func (tree *RBTree[K, V]) rotateLeft(nodeIdx uint32) {
	tree.rotate(nodeIdx, true)
}

func (tree *RBTree[K, V]) rotateRight(nodeIdx uint32) {
	tree.rotate(nodeIdx, false)
}
