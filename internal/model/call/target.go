package call

// Presence is the availability shown next to a transfer option.
type Presence string

const (
	PresenceAvailable Presence = "available"
	PresenceBusy      Presence = "busy"
	PresenceOffline   Presence = "offline"
)

// TransferTarget is a static catalog entry the agent can hand a call to.
type TransferTarget struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Presence  Presence `json:"presence"`
	Automated bool     `json:"automated"`
}

// TargetStore exposes transfer target lookup for handlers and the simulator.
type TargetStore interface {
	List() []TransferTarget
	FindByID(id string) (TransferTarget, bool)
}

// MemoryStore implements TargetStore with an in-memory slice.
type MemoryStore struct {
	items []TransferTarget
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied targets.
func NewMemoryStore(items []TransferTarget) *MemoryStore {
	return &MemoryStore{items: append([]TransferTarget(nil), items...)}
}

// List returns the catalog in declaration order.
func (s *MemoryStore) List() []TransferTarget {
	return append([]TransferTarget(nil), s.items...)
}

// FindByID looks up a target by identifier.
func (s *MemoryStore) FindByID(id string) (TransferTarget, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return TransferTarget{}, false
}

// SeedTargets provides the default transfer catalog of the call console.
func SeedTargets() []TransferTarget {
	return []TransferTarget{
		{
			ID:        "ai",
			Name:      "Benefits Assistant",
			Role:      "Automated eligibility & benefits line",
			Presence:  PresenceAvailable,
			Automated: true,
		},
		{
			ID:       "nurse-line",
			Name:     "Amara Okafor",
			Role:     "Nurse advice line",
			Presence: PresenceAvailable,
		},
		{
			ID:       "claims-supervisor",
			Name:     "Tunde Bakare",
			Role:     "Claims supervisor",
			Presence: PresenceBusy,
		},
		{
			ID:       "benefits-specialist",
			Name:     "Ngozi Eze",
			Role:     "Benefits specialist",
			Presence: PresenceOffline,
		},
	}
}
