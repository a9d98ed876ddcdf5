package storage

import "fmt"

// DefaultStoreKind is the backend the CLI commands use when --store is not
// given. Runs persist across invocations so runs, show and reset can see them.
func DefaultStoreKind() string { return "sqlite" }

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
