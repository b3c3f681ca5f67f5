// Package entity resolves the canonical owner of a license record.
package entity

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeCompany Type = "Company"
	TypePartner Type = "Partner"
)

func (t Type) Valid() bool {
	return t == TypeCompany || t == TypePartner
}

// Entity is the resolved owner of a license. It is never persisted.
type Entity struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Key returns the composite aggregation key of the entity.
func (e Entity) Key() Key {
	return Key{Name: e.Name, Type: e.Type}
}

// Label renders the entity as "Name (Type)".
func (e Entity) Label() string {
	return fmt.Sprintf("%s (%s)", e.Name, e.Type)
}

// Key identifies an entity for aggregation. Company and Partner owners sharing a name stay distinct.
type Key struct {
	Name string
	Type Type
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.Name
}

// DataIntegrityError reports a license that references neither a company nor a partner.
type DataIntegrityError struct {
	LicenseID int64
}

func (e *DataIntegrityError) Error() string {
	if e.LicenseID == 0 {
		return "license has neither company nor partner reference"
	}
	return fmt.Sprintf("license %d has neither company nor partner reference", e.LicenseID)
}

// Resolve returns the partner when a non-empty partner name is present, otherwise the company.
func Resolve(licenseID int64, companyName, partnerName string) (Entity, error) {
	if name := strings.TrimSpace(partnerName); name != "" {
		return Entity{Name: name, Type: TypePartner}, nil
	}
	if name := strings.TrimSpace(companyName); name != "" {
		return Entity{Name: name, Type: TypeCompany}, nil
	}
	return Entity{}, &DataIntegrityError{LicenseID: licenseID}
}
