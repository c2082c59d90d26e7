package account

import (
	"github.com/Optum/tally/pkg/errors"
	"github.com/Optum/tally/pkg/tagset"
)

// Service resolves billing accounts and the reservation-sharing topology
// between them. Values are fixed at construction; reads are lock-free.
type Service struct {
	registry  *tagset.Registry
	byID      map[string]*tagset.Account
	byName    map[string]*tagset.Account
	borrowers map[string][]*tagset.Account
	access    map[string]roleAccess
	zoneMap   map[zoneMapKey]string
}

type roleAccess struct {
	role       string
	externalID string
}

type zoneMapKey struct {
	borrower string
	owner    string
	zone     string
}

// NewServiceInput Input for creating a new Service
type NewServiceInput struct {
	Registry *tagset.Registry
	Accounts []Config
}

// NewService creates a new instance of the Service
func NewService(input NewServiceInput) (*Service, error) {
	svc := &Service{
		registry:  input.Registry,
		byID:      make(map[string]*tagset.Account),
		byName:    make(map[string]*tagset.Account),
		borrowers: make(map[string][]*tagset.Account),
		access:    make(map[string]roleAccess),
		zoneMap:   make(map[zoneMapKey]string),
	}

	for _, cfg := range input.Accounts {
		if err := validateConfig(&cfg); err != nil {
			return nil, err
		}
		if _, ok := svc.byID[cfg.ID]; ok {
			return nil, errors.NewAlreadyExists("account", cfg.ID)
		}
		a := input.Registry.Account(cfg.ID, cfg.Name)
		svc.byID[cfg.ID] = a
		svc.byName[cfg.Name] = a
		if cfg.AccessRole != "" {
			svc.access[cfg.ID] = roleAccess{role: cfg.AccessRole, externalID: cfg.ExternalID}
		}
		for _, m := range cfg.ZoneMappings {
			svc.zoneMap[zoneMapKey{borrower: m.Borrower, owner: cfg.ID, zone: m.Zone}] = m.MappedTo
		}
	}

	// second pass so borrower ids can reference accounts declared later
	for _, cfg := range input.Accounts {
		for _, id := range cfg.ReservationBorrowers {
			b, ok := svc.byID[id]
			if !ok {
				return nil, errors.NewConfiguration("unknown reservation borrower "+id+" for account "+cfg.ID, nil)
			}
			svc.borrowers[cfg.ID] = append(svc.borrowers[cfg.ID], b)
		}
	}

	return svc, nil
}

// ByID returns an account from ID
func (s *Service) ByID(id string) (*tagset.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, errors.NewNotFound("account", id)
	}
	return a, nil
}

// ByName returns an account from its display name
func (s *Service) ByName(name string) (*tagset.Account, error) {
	a, ok := s.byName[name]
	if !ok {
		return nil, errors.NewNotFound("account", name)
	}
	return a, nil
}

// ReservationOwnerToBorrowers returns the accounts allowed to consume each
// owner's reservation capacity, keyed by owner.
func (s *Service) ReservationOwnerToBorrowers() map[*tagset.Account][]*tagset.Account {
	out := make(map[*tagset.Account][]*tagset.Account, len(s.borrowers))
	for id, borrowers := range s.borrowers {
		out[s.byID[id]] = borrowers
	}
	return out
}

// AccessRole returns the role and external id used to read the owner's
// billing bucket. Both empty when the process credentials apply.
func (s *Service) AccessRole(ownerID string) (string, string) {
	a := s.access[ownerID]
	return a.role, a.externalID
}

// MappedZone translates a borrower's zone into the owner's equivalent zone.
// Unmapped zones pass through unchanged.
func (s *Service) MappedZone(borrower *tagset.Account, owner *tagset.Account, zone *tagset.Zone) *tagset.Zone {
	if zone == nil {
		return nil
	}
	mapped, ok := s.zoneMap[zoneMapKey{borrower: borrower.ID, owner: owner.ID, zone: zone.Name}]
	if !ok {
		return zone
	}
	return s.registry.Zone(zone.Region, mapped)
}
