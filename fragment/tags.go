package fragment

import "sync"

// TagManager is a bidirectional index between tags and fragment keys,
// used for bulk invalidation of related fragments. Reads return defensive
// copies.
type TagManager struct {
	mutex sync.RWMutex
	byTag map[string]map[string]struct{}
	byKey map[string]map[string]struct{}
}

// NewTagManager returns an empty TagManager.
func NewTagManager() *TagManager {
	return &TagManager{
		byTag: make(map[string]map[string]struct{}),
		byKey: make(map[string]map[string]struct{}),
	}
}

// Tag associates key with each of the given tags.
func (m *TagManager) Tag(key string, tags ...string) {
	if len(tags) == 0 {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, tag := range tags {
		if m.byTag[tag] == nil {
			m.byTag[tag] = make(map[string]struct{})
		}
		m.byTag[tag][key] = struct{}{}
		if m.byKey[key] == nil {
			m.byKey[key] = make(map[string]struct{})
		}
		m.byKey[key][tag] = struct{}{}
	}
}

// KeysForTag returns a snapshot of the keys registered under tag.
func (m *TagManager) KeysForTag(tag string) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return setSnapshot(m.byTag[tag])
}

// TagsForKey returns a snapshot of the tags attached to key.
func (m *TagManager) TagsForKey(key string) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return setSnapshot(m.byKey[key])
}

// InvalidateTag removes the tag and returns every key that was registered
// under it. Each returned key loses its membership in the tag; keys with
// no remaining tags are dropped from the reverse index.
func (m *TagManager) InvalidateTag(tag string) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	keys := setSnapshot(m.byTag[tag])
	for _, key := range keys {
		delete(m.byKey[key], tag)
		if len(m.byKey[key]) == 0 {
			delete(m.byKey, key)
		}
	}
	delete(m.byTag, tag)
	return keys
}

// Remove drops key from every tag it belongs to.
func (m *TagManager) Remove(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for tag := range m.byKey[key] {
		delete(m.byTag[tag], key)
		if len(m.byTag[tag]) == 0 {
			delete(m.byTag, tag)
		}
	}
	delete(m.byKey, key)
}

func setSnapshot(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
