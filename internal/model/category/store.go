package category

// Store exposes category lookup for HTTP handlers.
type Store interface {
	List() []Category
	Find(name string) (Category, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Category
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied categories.
func NewMemoryStore(items []Category) *MemoryStore {
	return &MemoryStore{items: append([]Category(nil), items...)}
}

// List returns the configured categories in declaration order.
func (s *MemoryStore) List() []Category {
	return append([]Category(nil), s.items...)
}

// Find looks up a category by name.
func (s *MemoryStore) Find(name string) (Category, bool) {
	for _, item := range s.items {
		if item.Name == name {
			return item, true
		}
	}
	return Category{}, false
}

// PreambleFor resolves the system prompt for a category, falling back to DefaultPreamble.
func PreambleFor(store Store, name string) string {
	if item, ok := store.Find(name); ok && item.Preamble != "" {
		return item.Preamble
	}
	return DefaultPreamble
}
