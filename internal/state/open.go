package state

import "fmt"

// Backend names accepted by Open
const (
	BackendJSON = "json"
	BackendBolt = "bolt"
)

// Open returns the store for the named backend
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendJSON, "":
		return NewFileStore(path), nil
	case BackendBolt:
		s, err := OpenBoltStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
