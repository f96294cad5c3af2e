package ordertype

import "container/list"

// OrderedMap is a string-keyed map that iterates in insertion order, with
// O(1) Get/Set/Delete. It backs OwnerProfile.Orders so owners_map's
// "iteration in insertion order" guarantee (spec.md §3) holds mechanically.
type OrderedMap struct {
	index map[string]*list.Element
	order *list.List
}

type orderedMapEntry struct {
	key   string
	value interface{}
}

// NewOrderedMap constructs an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{
		index: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Set inserts or overwrites the value for key, preserving its original
// position on overwrite (append-only insertion order).
func (m *OrderedMap) Set(key string, value interface{}) {
	if el, ok := m.index[key]; ok {
		el.Value.(*orderedMapEntry).value = value
		return
	}
	el := m.order.PushBack(&orderedMapEntry{key: key, value: value})
	m.index[key] = el
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap) Get(key string) (interface{}, bool) {
	el, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*orderedMapEntry).value, true
}

// Delete removes key, if present.
func (m *OrderedMap) Delete(key string) {
	el, ok := m.index[key]
	if !ok {
		return
	}
	m.order.Remove(el)
	delete(m.index, key)
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	return len(m.index)
}

// Keys returns all keys in insertion order.
func (m *OrderedMap) Keys() []string {
	keys := make([]string, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*orderedMapEntry).key)
	}
	return keys
}
