package listener

import (
	"reflect"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

var idCounter uint64

// NewID generates a new unique ID
func NewID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return strconv.FormatUint(atomic.AddUint64(&idCounter, 1), 10)
}

// Key identifies one registered listener. The empty Key means "not
// registered".
type Key string

// Valid reports whether k refers to a registration attempt that succeeded.
func (k Key) Valid() bool {
	return k != ""
}

func (k Key) String() string {
	return string(k)
}

// newKey combines the target description, the event name, the registry ID
// and a per-registry sequence number. The sequence alone makes keys unique
// within one registry; the registry ID keeps them distinct across registries.
func newKey(target Target, event, registryID string, seq uint64) Key {
	return Key(describe(target) + "_" + event + "_" + registryID + "-" + strconv.FormatUint(seq, 10))
}

// isNil reports whether v is nil or an interface holding a nil pointer,
// map, slice, func or channel.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
