package account

// Config describes one billing account and its reservation-sharing
// relationships. Accounts are loaded once at startup; the set does not
// change while the process runs.
type Config struct {
	ID   string `json:"id" env:"-"`
	Name string `json:"name" env:"-"`

	// Accounts allowed to consume this account's reservations
	ReservationBorrowers []string `json:"reservationBorrowers,omitempty"`

	// Role assumed to read this account's billing bucket. Empty means the
	// process credentials are used directly.
	AccessRole string `json:"accessRole,omitempty"`
	ExternalID string `json:"externalId,omitempty"`

	// Zone remappings applied when a borrower consumes this owner's
	// reservations across zones.
	ZoneMappings []ZoneMapping `json:"zoneMappings,omitempty"`
}

// ZoneMapping maps a borrower's zone onto the owner's equivalent zone
type ZoneMapping struct {
	Borrower string `json:"borrower"`
	Zone     string `json:"zone"`
	MappedTo string `json:"mappedTo"`
}
