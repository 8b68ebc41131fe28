package kinds

import (
	"github.com/google/uuid"

	"github.com/JonMunkholm/rowbind/internal/convert"
	"github.com/JonMunkholm/rowbind/internal/core"
)

func init() {
	registerCustomers()
	registerContacts()
}

// Tier ranks customers by contract size.
type Tier int

func (Tier) EnumValues() []string {
	return []string{"Bronze", "Silver", "Gold", "Platinum"}
}

// Customer is one row of a CRM account export.
type Customer struct {
	ID            string       `sheet:"Customer ID,required"`
	Name          string       `sheet:"Customer Name,required,width=32"`
	Email         string       `sheet:"Email,width=32"`
	State         string       `sheet:"State,converter=us_state"`
	Tier          Tier         `sheet:"Tier,default=Bronze"`
	CreditLimit   *float64     `sheet:"Credit Limit"`
	CustomerSince convert.Date `sheet:"Customer Since"`
	Active        bool         `sheet:"Active,default=true"`
}

// Contact is a person attached to a customer. Contacts are checked before
// they are keyed into the CRM by hand, so they have no destination table.
type Contact struct {
	CustomerID string       `sheet:"Customer ID,required"`
	Name       string       `sheet:"Full Name,required"`
	Email      string       `sheet:"Email"`
	Phone      string       `sheet:"Phone"`
	Initial    convert.Char `sheet:"Middle Initial"`
	Ref        *uuid.UUID   `sheet:"Reference"`
}

func registerCustomers() {
	core.Register(core.NewKind[Customer](core.KindInfo{
		Key:          "customer",
		Group:        "CRM",
		Label:        "Customers",
		Description:  "Customer accounts with billing state and tier",
		Table:        "customers",
		UploadColumn: UploadColumn,
	}))
}

func registerContacts() {
	core.Register(core.NewKind[Contact](core.KindInfo{
		Key:         "contact",
		Group:       "CRM",
		Label:       "Contacts",
		Description: "Customer contacts, validation only",
	}))
}
