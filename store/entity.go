// Package store implements CRUD for the rolodex person directory over a
// single partitioned DynamoDB table. A Person owns four unbounded child
// collections (Address, BankAccount, ContactInfo, Employment); all five
// entity types share the table and its two secondary indexes.
package store

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/rolodex/keys"
	"github.com/jacentio/rolodex/schema"
)

// Item is an alias for the dynamodb attribute value map.
type Item = map[string]types.AttributeValue

// Attribute names reserved for keys and the type discriminator.
const (
	AttrPK         = "pk"
	AttrSK         = "sk"
	AttrListPK     = "gsi1pk"
	AttrListSK     = "gsi1sk"
	AttrGlobalPK   = "gsi2pk"
	AttrGlobalSK   = "gsi2sk"
	AttrEntityType = "entityType"
)

// NewID returns a fresh entity identifier.
func NewID() string { return uuid.NewString() }

// Person is the root entity.
type Person struct {
	ID          string  `dynamodbav:"id"`
	FirstName   string  `dynamodbav:"firstName"`
	LastName    string  `dynamodbav:"lastName"`
	DateOfBirth *string `dynamodbav:"dateOfBirth,omitempty"`
	Gender      *string `dynamodbav:"gender,omitempty"`
	CreatedAt   string  `dynamodbav:"createdAt"`
	UpdatedAt   string  `dynamodbav:"updatedAt"`
}

// PersonPatch carries a partial update; nil fields are left untouched.
type PersonPatch struct {
	FirstName   *string
	LastName    *string
	DateOfBirth *string
	Gender      *string
}

// Address is a postal address owned by one person.
type Address struct {
	ID         string  `dynamodbav:"id"`
	PersonID   string  `dynamodbav:"personId"`
	Street     string  `dynamodbav:"street"`
	City       string  `dynamodbav:"city"`
	State      *string `dynamodbav:"state,omitempty"`
	PostalCode string  `dynamodbav:"postalCode"`
	Country    string  `dynamodbav:"country"`
	IsPrimary  bool    `dynamodbav:"isPrimary"`
}

// BankAccount is a bank account owned by one person.
type BankAccount struct {
	ID          string  `dynamodbav:"id"`
	PersonID    string  `dynamodbav:"personId"`
	BankName    string  `dynamodbav:"bankName"`
	IBAN        string  `dynamodbav:"iban"`
	BIC         *string `dynamodbav:"bic,omitempty"`
	AccountType string  `dynamodbav:"accountType"`
	IsPrimary   bool    `dynamodbav:"isPrimary"`
}

// ContactInfo is a contact channel (email, phone, mobile) owned by one person.
type ContactInfo struct {
	ID        string `dynamodbav:"id"`
	PersonID  string `dynamodbav:"personId"`
	Type      string `dynamodbav:"type"`
	Value     string `dynamodbav:"value"`
	IsPrimary bool   `dynamodbav:"isPrimary"`
}

// Employment is an employment record owned by one person. A nil EndDate
// means the employment is ongoing. The store does not enforce
// IsCurrent => EndDate == nil; that is the caller's responsibility.
type Employment struct {
	ID        string  `dynamodbav:"id"`
	PersonID  string  `dynamodbav:"personId"`
	Company   string  `dynamodbav:"company"`
	Position  string  `dynamodbav:"position"`
	StartDate string  `dynamodbav:"startDate"`
	EndDate   *string `dynamodbav:"endDate,omitempty"`
	IsCurrent bool    `dynamodbav:"isCurrent"`
}

// PersonRecord is the composite read of a person and all of its children.
type PersonRecord struct {
	Person       *Person
	Addresses    []Address
	BankAccounts []BankAccount
	ContactInfos []ContactInfo
	Employments  []Employment
}

// Contact channel and gender enumerations. The derived schemas validate
// membership on write.
const (
	ContactEmail  = "email"
	ContactPhone  = "phone"
	ContactMobile = "mobile"
)

// entitySchemas declares the field schema of each entity type. The
// storage attribute schemas are derived from these once at Store
// construction, so the two cannot drift.
var entitySchemas = map[keys.EntityType]schema.Fields{
	keys.TypePerson: {
		"id":          schema.String(),
		"firstName":   schema.String(),
		"lastName":    schema.String(),
		"dateOfBirth": schema.Optional(schema.String()),
		"gender":      schema.Optional(schema.Enum("male", "female", "other")),
		"createdAt":   schema.Pipe(schema.String()),
		"updatedAt":   schema.Pipe(schema.String()),
	},
	keys.TypeAddress: {
		"id":         schema.String(),
		"personId":   schema.String(),
		"street":     schema.String(),
		"city":       schema.String(),
		"state":      schema.Optional(schema.String()),
		"postalCode": schema.String(),
		"country":    schema.String(),
		"isPrimary":  schema.Default(schema.Boolean(), false),
	},
	keys.TypeBankAccount: {
		"id":          schema.String(),
		"personId":    schema.String(),
		"bankName":    schema.String(),
		"iban":        schema.String(),
		"bic":         schema.Optional(schema.String()),
		"accountType": schema.Default(schema.Enum("checking", "savings"), "checking"),
		"isPrimary":   schema.Default(schema.Boolean(), false),
	},
	keys.TypeContactInfo: {
		"id":        schema.String(),
		"personId":  schema.String(),
		"type":      schema.Enum(ContactEmail, ContactPhone, ContactMobile),
		"value":     schema.String(),
		"isPrimary": schema.Default(schema.Boolean(), false),
	},
	keys.TypeEmployment: {
		"id":        schema.String(),
		"personId":  schema.String(),
		"company":   schema.String(),
		"position":  schema.String(),
		"startDate": schema.String(),
		"endDate":   schema.Nullable(schema.String()),
		"isCurrent": schema.Default(schema.Boolean(), false),
	},
}

// child is implemented by the four child entity types so the generic
// CRUD helpers can key them.
type child interface {
	Address | BankAccount | ContactInfo | Employment
}

func childType[T child]() keys.EntityType {
	var v T
	switch any(v).(type) {
	case Address:
		return keys.TypeAddress
	case BankAccount:
		return keys.TypeBankAccount
	case ContactInfo:
		return keys.TypeContactInfo
	default:
		return keys.TypeEmployment
	}
}

func childIDs[T child](v *T) (personID, id string) {
	switch c := any(*v).(type) {
	case Address:
		return c.PersonID, c.ID
	case BankAccount:
		return c.PersonID, c.ID
	case ContactInfo:
		return c.PersonID, c.ID
	case Employment:
		return c.PersonID, c.ID
	default:
		return "", ""
	}
}

func setChildID[T child](v *T, id string) {
	switch c := any(v).(type) {
	case *Address:
		c.ID = id
	case *BankAccount:
		c.ID = id
	case *ContactInfo:
		c.ID = id
	case *Employment:
		c.ID = id
	}
}
