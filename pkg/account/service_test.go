package account_test

import (
	"testing"

	"github.com/Optum/tally/pkg/account"
	"github.com/Optum/tally/pkg/tagset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, r *tagset.Registry) *account.Service {
	svc, err := account.NewService(account.NewServiceInput{
		Registry: r,
		Accounts: []account.Config{
			{
				ID:                   "111111111111",
				Name:                 "prod",
				ReservationBorrowers: []string{"222222222222"},
				AccessRole:           "billing-reader",
				ExternalID:           "tally",
				ZoneMappings: []account.ZoneMapping{
					{Borrower: "222222222222", Zone: "us-east-1b", MappedTo: "us-east-1a"},
				},
			},
			{ID: "222222222222", Name: "dev"},
		},
	})
	require.Nil(t, err)
	return svc
}

func TestAccountLookup(t *testing.T) {
	r := tagset.NewRegistry()
	svc := newTestService(t, r)

	tests := []struct {
		name    string
		lookup  func() (*tagset.Account, error)
		expID   string
		expName string
		expErr  bool
	}{
		{
			name:    "by id",
			lookup:  func() (*tagset.Account, error) { return svc.ByID("111111111111") },
			expID:   "111111111111",
			expName: "prod",
		},
		{
			name:    "by name",
			lookup:  func() (*tagset.Account, error) { return svc.ByName("dev") },
			expID:   "222222222222",
			expName: "dev",
		},
		{
			name:   "unknown id fails",
			lookup: func() (*tagset.Account, error) { return svc.ByID("999999999999") },
			expErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := tt.lookup()
			if tt.expErr {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.expID, a.ID)
			assert.Equal(t, tt.expName, a.Name)
		})
	}
}

func TestAccountLookupReturnsInternedInstance(t *testing.T) {
	r := tagset.NewRegistry()
	svc := newTestService(t, r)

	a1, err := svc.ByID("111111111111")
	require.Nil(t, err)
	a2, err := svc.ByName("prod")
	require.Nil(t, err)
	assert.Same(t, a1, a2)
}

func TestReservationTopology(t *testing.T) {
	r := tagset.NewRegistry()
	svc := newTestService(t, r)

	owner, _ := svc.ByID("111111111111")
	borrower, _ := svc.ByID("222222222222")

	topology := svc.ReservationOwnerToBorrowers()
	require.Len(t, topology, 1)
	assert.Equal(t, []*tagset.Account{borrower}, topology[owner])

	role, extID := svc.AccessRole("111111111111")
	assert.Equal(t, "billing-reader", role)
	assert.Equal(t, "tally", extID)

	role, extID = svc.AccessRole("222222222222")
	assert.Empty(t, role)
	assert.Empty(t, extID)
}

func TestMappedZone(t *testing.T) {
	r := tagset.NewRegistry()
	svc := newTestService(t, r)

	owner, _ := svc.ByID("111111111111")
	borrower, _ := svc.ByID("222222222222")
	region := r.Region("us-east-1")

	mapped := svc.MappedZone(borrower, owner, r.Zone(region, "us-east-1b"))
	assert.Equal(t, "us-east-1a", mapped.Name)

	passthrough := svc.MappedZone(borrower, owner, r.Zone(region, "us-east-1c"))
	assert.Equal(t, "us-east-1c", passthrough.Name)

	assert.Nil(t, svc.MappedZone(borrower, owner, nil))
}

func TestNewServiceValidation(t *testing.T) {
	tests := []struct {
		name     string
		accounts []account.Config
	}{
		{
			name:     "rejects malformed account id",
			accounts: []account.Config{{ID: "12345", Name: "short"}},
		},
		{
			name:     "rejects missing name",
			accounts: []account.Config{{ID: "111111111111"}},
		},
		{
			name: "rejects unknown borrower",
			accounts: []account.Config{
				{ID: "111111111111", Name: "prod", ReservationBorrowers: []string{"333333333333"}},
			},
		},
		{
			name: "rejects duplicate account id",
			accounts: []account.Config{
				{ID: "111111111111", Name: "prod"},
				{ID: "111111111111", Name: "prod-again"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := account.NewService(account.NewServiceInput{
				Registry: tagset.NewRegistry(),
				Accounts: tt.accounts,
			})
			assert.NotNil(t, err)
		})
	}
}
