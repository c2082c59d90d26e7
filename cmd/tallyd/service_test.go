package main

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Optum/tally/pkg/account"
	"github.com/Optum/tally/pkg/common"
	"github.com/Optum/tally/pkg/tagset"
)

type recordingTokenService struct {
	plain    int
	external int
}

func (r *recordingTokenService) AssumeRole(*sts.AssumeRoleInput) (*sts.AssumeRoleOutput, error) {
	return nil, nil
}

func (r *recordingTokenService) NewCredentials(client.ConfigProvider, string) *credentials.Credentials {
	r.plain++
	return credentials.NewStaticCredentials("id", "secret", "")
}

func (r *recordingTokenService) NewCredentialsWithExternalID(client.ConfigProvider, string, string) *credentials.Credentials {
	r.external++
	return credentials.NewStaticCredentials("id", "secret", "")
}

type sharedStorage struct{ common.Storager }

func TestStorageProviderCredentialSelection(t *testing.T) {
	registry := tagset.NewRegistry()
	accounts, err := account.NewService(account.NewServiceInput{
		Registry: registry,
		Accounts: []account.Config{
			{
				ID: "111111111111", Name: "payer",
				AccessRole: "arn:aws:iam::111111111111:role/billing",
				ExternalID: "tally-billing",
			},
			{
				ID: "222222222222", Name: "linked",
				AccessRole: "arn:aws:iam::222222222222:role/billing",
			},
			{ID: "333333333333", Name: "local"},
		},
	})
	require.Nil(t, err)

	shared := &sharedStorage{}
	token := &recordingTokenService{}
	provider := storageProvider(session.Must(session.NewSession()), token, accounts, shared)

	// no access role: the process client is shared as-is
	assert.Same(t, shared, provider("333333333333"))
	assert.Equal(t, 0, token.plain)
	assert.Equal(t, 0, token.external)

	// an external id selects the scoped credential constructor
	s1 := provider("111111111111")
	assert.NotNil(t, s1)
	assert.Equal(t, 1, token.external)
	assert.Equal(t, 0, token.plain)

	// without one the plain assume-role constructor is used
	s2 := provider("222222222222")
	assert.Equal(t, 1, token.plain)
	assert.NotSame(t, s1, s2)

	// clients are cached per account
	assert.Same(t, s1, provider("111111111111"))
	assert.Equal(t, 1, token.external)
}
