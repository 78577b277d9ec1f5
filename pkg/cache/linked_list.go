package cache

import "iter"

// linkedListNode represents a node in the doubly linked list.
type linkedListNode[V any] struct {
	next  *linkedListNode[V]
	prev  *linkedListNode[V]
	Value V
}

// Next returns the next node in the list.
func (n *linkedListNode[V]) Next() *linkedListNode[V] {
	return n.next
}

// Prev returns the previous node in the list.
func (n *linkedListNode[V]) Prev() *linkedListNode[V] {
	return n.prev
}

// linkedList represents a doubly linked list. The zero value is an empty list ready to use.
type linkedList[V any] struct {
	head *linkedListNode[V]
	tail *linkedListNode[V]
	size int
}

// Len returns the number of elements in the list.
func (l *linkedList[V]) Len() int {
	return l.size
}

// Front returns the first node of the list or nil if the list is empty.
func (l *linkedList[V]) Front() *linkedListNode[V] {
	return l.head
}

// Back returns the last node of the list or nil if the list is empty.
func (l *linkedList[V]) Back() *linkedListNode[V] {
	return l.tail
}

// unlink detaches `n` from its neighbours without touching the list size.
func (l *linkedList[V]) unlink(n *linkedListNode[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else { // Node is the head.
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else { // Node is the tail.
		l.tail = n.prev
	}
	n.next = nil
	n.prev = nil
}

// link appends a detached node `n` at the back of the list without touching the list size.
func (l *linkedList[V]) link(n *linkedListNode[V]) {
	n.prev = l.tail
	if l.tail != nil {
		l.tail.next = n
	} else { // List was empty.
		l.head = n
	}
	l.tail = n
}

// Remove removes a node from the list.
func (l *linkedList[V]) Remove(n *linkedListNode[V]) {
	l.unlink(n)
	l.size--
}

// PushBack adds a new value to the back of the list.
func (l *linkedList[V]) PushBack(v V) *linkedListNode[V] {
	n := &linkedListNode[V]{Value: v}
	l.link(n)
	l.size++
	return n
}

// MoveToBack moves an existing node of the list to its back; the node identity is preserved.
func (l *linkedList[V]) MoveToBack(n *linkedListNode[V]) {
	if l.tail == n {
		return
	}
	l.unlink(n)
	l.link(n)
}

// All yields the list values from front to back.
func (l *linkedList[V]) All() iter.Seq[V] {
	return func(yield func(V) bool) {
		for node := l.head; node != nil; node = node.next {
			if !yield(node.Value) {
				return
			}
		}
	}
}

// keyOrder is an ordered set of keys: a linked list indexed by key so that every key appears exactly once and can be
// moved or removed in O(1).
type keyOrder[K comparable] struct {
	list  linkedList[K]
	nodes map[K]*linkedListNode[K]
}

func newKeyOrder[K comparable]() *keyOrder[K] {
	return &keyOrder[K]{nodes: make(map[K]*linkedListNode[K])}
}

func (o *keyOrder[K]) len() int {
	return o.list.Len()
}

// pushBack appends `key` at the back; a key that is already present is moved there instead.
func (o *keyOrder[K]) pushBack(key K) {
	if node, exists := o.nodes[key]; exists {
		o.list.MoveToBack(node)
		return
	}
	o.nodes[key] = o.list.PushBack(key)
}

// appendNew appends `key` at the back only if it is not already present.
func (o *keyOrder[K]) appendNew(key K) {
	if _, exists := o.nodes[key]; !exists {
		o.nodes[key] = o.list.PushBack(key)
	}
}

func (o *keyOrder[K]) remove(key K) bool /*removed*/ {
	node, exists := o.nodes[key]
	if !exists {
		return false
	}
	o.list.Remove(node)
	delete(o.nodes, key)
	return true
}

func (o *keyOrder[K]) front() (K, bool) {
	if node := o.list.Front(); node != nil {
		return node.Value, true
	}
	return *new(K), false
}

func (o *keyOrder[K]) back() (K, bool) {
	if node := o.list.Back(); node != nil {
		return node.Value, true
	}
	return *new(K), false
}

func (o *keyOrder[K]) all() iter.Seq[K] {
	return o.list.All()
}
