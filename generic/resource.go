/*
resource.go - Resource type registration and lookup

PURPOSE:
  Lets domain packages register their ResourceType values so stores can
  rebuild the concrete type from the string ID kept in the database.

USAGE:
  // In leave/category.go
  func init() {
      for _, c := range AllCategories() {
          generic.RegisterResource(c)
      }
  }

  // In a store
  resource := generic.GetOrCreateResource("annual") // leave.Annual
*/
package generic

import (
	"sync"
)

var (
	resourceRegistry = make(map[string]ResourceType)
	registryMu       sync.RWMutex
)

// RegisterResource adds a resource type to the global registry.
func RegisterResource(r ResourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[r.ResourceID()] = r
}

// LookupResource finds a registered resource type by ID.
// Returns nil if not found.
func LookupResource(id string) ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resourceRegistry[id]
}

// StringResource is the fallback for IDs with no registered type.
type StringResource struct {
	ID string
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return "unknown" }

// GetOrCreateResource looks up a resource type, or creates a StringResource fallback.
func GetOrCreateResource(id string) ResourceType {
	if r := LookupResource(id); r != nil {
		return r
	}
	return StringResource{ID: id}
}
