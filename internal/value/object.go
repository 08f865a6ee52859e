package value

// Object is a string-keyed map that remembers insertion order.
// It is not safe for concurrent mutation.
type Object struct {
	keys  []string
	vals  []Value
	index map[string]int
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return NewObjectSize(0)
}

// NewObjectSize returns an empty Object with room for n entries.
func NewObjectSize(n int) *Object {
	return &Object{
		keys:  make([]string, 0, n),
		vals:  make([]Value, 0, n),
		index: make(map[string]int, n),
	}
}

// Set stores val under key. Replacing an existing key keeps its position.
func (o *Object) Set(key string, val Value) *Object {
	if i, ok := o.index[key]; ok {
		o.vals[i] = val
		return o
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.vals = append(o.vals, val)
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Null(), false
	}
	i, ok := o.index[key]
	if !ok {
		return Null(), false
	}
	return o.vals[i], true
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	if o == nil {
		return false
	}
	_, ok := o.index[key]
	return ok
}

// Delete removes key, preserving the order of the remaining keys.
func (o *Object) Delete(key string) {
	i, ok := o.index[key]
	if !ok {
		return
	}
	o.keys = append(o.keys[:i], o.keys[i+1:]...)
	o.vals = append(o.vals[:i], o.vals[i+1:]...)
	delete(o.index, key)
	for j := i; j < len(o.keys); j++ {
		o.index[o.keys[j]] = j
	}
}

// Len returns the number of entries.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns a copy of the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Range calls fn for each entry in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, val Value) bool) {
	if o == nil {
		return
	}
	for i, key := range o.keys {
		if !fn(key, o.vals[i]) {
			return
		}
	}
}
