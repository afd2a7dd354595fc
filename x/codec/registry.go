package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultCodecName is the name the protobuf codec is registered under.
const DefaultCodecName = "protobuf"

var (
	// ErrUnknownCodec is returned by Lookup for a name nothing was registered under.
	ErrUnknownCodec = errors.New("codec: unknown codec")
	// ErrDuplicateCodec is returned when a name is registered twice.
	ErrDuplicateCodec = errors.New("codec: codec already registered")
)

// Registry holds the stream codecs a process can frame envelopes with. Every
// transport in one process shares the registry so their size limits agree.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]StreamCodec
}

// NewRegistry creates a registry holding the protobuf codec under DefaultCodecName.
func NewRegistry(maxMessageSize int) *Registry {
	return &Registry{
		codecs: map[string]StreamCodec{
			DefaultCodecName: NewProtobufCodec(maxMessageSize),
		},
	}
}

// Register adds c under name.
func (r *Registry) Register(name string, c StreamCodec) error {
	if name == "" || c == nil {
		return errors.New("codec: name and codec are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCodec, name)
	}
	r.codecs[name] = c
	return nil
}

// Lookup returns the codec registered under name.
func (r *Registry) Lookup(name string) (StreamCodec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Default returns the protobuf codec.
func (r *Registry) Default() StreamCodec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.codecs[DefaultCodecName]
}

// Names lists the registered codec names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
