package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrefersPartner(t *testing.T) {
	got, err := Resolve(1, "Acme", "Beta")
	require.NoError(t, err)
	assert.Equal(t, Entity{Name: "Beta", Type: TypePartner}, got)
}

func TestResolveFallsBackToCompanyOnBlankPartner(t *testing.T) {
	got, err := Resolve(1, " Acme ", "   ")
	require.NoError(t, err)
	assert.Equal(t, Entity{Name: "Acme", Type: TypeCompany}, got)
}

func TestResolveMissingReferencesIsIntegrityError(t *testing.T) {
	_, err := Resolve(42, "", "")
	require.Error(t, err)

	var integrityErr *DataIntegrityError
	require.True(t, errors.As(err, &integrityErr))
	assert.Equal(t, int64(42), integrityErr.LicenseID)
}

func TestResolveIsIdempotent(t *testing.T) {
	first, err := Resolve(7, "Acme", "")
	require.NoError(t, err)

	var companyName, partnerName string
	if first.Type == TypeCompany {
		companyName = first.Name
	} else {
		partnerName = first.Name
	}
	second, err := Resolve(7, companyName, partnerName)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestKeyKeepsTypesApart(t *testing.T) {
	company := Entity{Name: "Acme", Type: TypeCompany}
	partner := Entity{Name: "Acme", Type: TypePartner}
	assert.NotEqual(t, company.Key(), partner.Key())
	assert.Equal(t, "Acme (Partner)", partner.Label())
}
