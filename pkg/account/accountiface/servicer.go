//

package accountiface

import (
	"github.com/Optum/tally/pkg/tagset"
)

// Servicer makes working with the Account Service struct easier
type Servicer interface {
	// ByID returns an account from ID
	ByID(id string) (*tagset.Account, error)
	// ByName returns an account from its display name
	ByName(name string) (*tagset.Account, error)
	// ReservationOwnerToBorrowers returns the reservation-sharing topology
	ReservationOwnerToBorrowers() map[*tagset.Account][]*tagset.Account
	// AccessRole returns the billing-bucket role and external id for an owner
	AccessRole(ownerID string) (string, string)
	// MappedZone translates a borrower zone into the owner's equivalent zone
	MappedZone(borrower *tagset.Account, owner *tagset.Account, zone *tagset.Zone) *tagset.Zone
}
