package housing

import (
	"fmt"
	"time"

	"github.com/hidenkeys/aloes/storage"
	"gorm.io/datatypes"
)

// Model replaces gorm.Model: rows are really deleted, so codes and lots can be reused.
type Model struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m *Model) GetID() uint   { return m.ID }
func (m *Model) SetID(id uint) { m.ID = id }

type School struct {
	Model
	Name string `json:"name" gorm:"size:255;not null" validate:"required,max=255"`
}

type Renovation struct {
	Model
	Name        string `json:"name" gorm:"size:255;not null" validate:"required,max=255"`
	Description string `json:"description"`
	Color       string `json:"color" gorm:"size:7;not null" validate:"omitempty,hexcolor,len=7"`
}

const DefaultRenovationColor = "#FF0000"

type Rent struct {
	Model
	Type           string  `json:"type" gorm:"size:255;not null" validate:"required,max=255"`
	Rent           float64 `json:"rent" gorm:"type:decimal(7,2)" validate:"gte=0"`
	Service        float64 `json:"service" gorm:"type:decimal(7,2)" validate:"gte=0"`
	Charges        float64 `json:"charges" gorm:"type:decimal(7,2)" validate:"gte=0"`
	ApplicationFee float64 `json:"applicationFee" gorm:"type:decimal(7,2)" validate:"gte=0"`
	Surface        float64 `json:"surface" gorm:"type:decimal(7,2)" validate:"gte=0"`
}

// Supplements is service plus charges.
func (r *Rent) Supplements() float64 {
	return r.Service + r.Charges
}

func (r *Rent) TotalRent() float64 {
	return r.Rent + r.Supplements()
}

func (r *Rent) String() string {
	return fmt.Sprintf("%s (%.2f m2)", r.Type, r.Surface)
}

const (
	GenderMale   = "M"
	GenderFemale = "F"
)

type Tenant struct {
	Model
	Name       string          `json:"name" gorm:"size:255;not null" validate:"required,max=255"`
	FirstName  string          `json:"firstName" gorm:"size:255;not null" validate:"required,max=255"`
	Gender     string          `json:"gender" gorm:"size:1;not null" validate:"oneof=M F"`
	SchoolID   *uint           `json:"schoolId"`
	School     *School         `json:"school,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	SchoolYear *uint           `json:"schoolYear"`
	EntryDate  *datatypes.Date `json:"dateOfEntry" gorm:"column:date_of_entry"`

	// DepartureDate is the date the tenant left the residence altogether.
	DepartureDate *datatypes.Date `json:"dateOfDeparture" gorm:"column:date_of_departure"`
	Observations  string          `json:"observations"`
	Temporary     bool            `json:"temporary"`
	Cellphone     string          `json:"cellphone" gorm:"size:10"`
	Leaving       bool            `json:"leaving"`

	WaterproofUndersheet bool `json:"waterproofUndersheet"`
	Pillow               bool `json:"pillow"`
	Pillowcase           bool `json:"pillowcase"`
	Blanket              bool `json:"blanket"`
	Sheet                bool `json:"sheet"`

	Birthday         *datatypes.Date `json:"birthday"`
	Birthcity        string          `json:"birthcity" gorm:"size:255"`
	Birthdepartement string          `json:"birthdepartement" gorm:"size:255"`
	Birthcountry     string          `json:"birthcountry" gorm:"size:255"`

	StreetNumber *string `json:"streetNumber" gorm:"size:255"`
	Street       string  `json:"street" gorm:"size:255"`
	Zipcode      *uint   `json:"zipcode"`
	City         string  `json:"city" gorm:"size:255"`
	Country      string  `json:"country" gorm:"size:255"`
	Email        string  `json:"email" gorm:"size:254" validate:"omitempty,email"`
	Phone        string  `json:"phone" gorm:"size:10"`

	CurrentLeasingID *uint    `json:"currentLeasingId"`
	CurrentLeasing   *Leasing `json:"currentLeasing,omitempty" gorm:"foreignKey:CurrentLeasingID;references:ID;constraint:OnDelete:RESTRICT"`
	NextLeasingID    *uint    `json:"nextLeasingId"`
	NextLeasing      *Leasing `json:"nextLeasing,omitempty" gorm:"foreignKey:NextLeasingID;references:ID;constraint:OnDelete:RESTRICT"`
}

// Title is the civility used in documents and listings.
func (t *Tenant) Title() string {
	if t.Gender == GenderMale {
		return "M."
	}
	return "Mme."
}

func (t *Tenant) String() string {
	return t.Title() + " " + t.FirstName + " " + t.Name
}

// Room returns the current room, when CurrentLeasing.Room is loaded.
func (t *Tenant) Room() *Room {
	if t.CurrentLeasing == nil {
		return nil
	}
	return t.CurrentLeasing.Room
}

func (t *Tenant) NextRoom() *Room {
	if t.NextLeasing == nil {
		return nil
	}
	return t.NextLeasing.Room
}

func (t *Tenant) CivilStatusCompleted() bool {
	return t.Name != "" && t.FirstName != "" && t.Gender != "" && t.SchoolID != nil
}

func (t *Tenant) BirthCompleted() bool {
	return t.Birthday != nil && t.Birthcity != "" && t.Birthdepartement != "" && t.Birthcountry != ""
}

func (t *Tenant) AddressCompleted() bool {
	return t.StreetNumber != nil && *t.StreetNumber != "" && t.Street != "" && t.City != "" && t.Country != ""
}

func (t *Tenant) PhoneMailCompleted() bool {
	return t.Email != "" && t.Cellphone != "" && t.Phone != ""
}

func (t *Tenant) Completed() bool {
	return t.CivilStatusCompleted() && t.BirthCompleted() && t.AddressCompleted() && t.PhoneMailCompleted()
}

type RoomStatus string

const (
	StatusEmpty     RoomStatus = "empty"
	StatusLeaving   RoomStatus = "leaving"
	StatusTemporary RoomStatus = "temporary"
	StatusOccupied  RoomStatus = "occupied"
)

type Room struct {
	Model
	Lot              uint        `json:"lot" gorm:"uniqueIndex;not null"`
	Code             string      `json:"room" gorm:"column:room;size:6;uniqueIndex;not null"`
	RentID           uint        `json:"rentId" gorm:"not null"`
	Rent             *Rent       `json:"rent,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	RenovationID     *uint       `json:"renovationId"`
	Renovation       *Renovation `json:"renovation,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	Observations     string      `json:"observations"`
	Map              string      `json:"map"`
	CurrentLeasingID *uint       `json:"currentLeasingId"`
	CurrentLeasing   *Leasing    `json:"currentLeasing,omitempty" gorm:"foreignKey:CurrentLeasingID;references:ID;constraint:OnDelete:RESTRICT"`
	NextLeasingID    *uint       `json:"nextLeasingId"`
	NextLeasing      *Leasing    `json:"nextLeasing,omitempty" gorm:"foreignKey:NextLeasingID;references:ID;constraint:OnDelete:RESTRICT"`
	IsActive         bool        `json:"isActive" gorm:"not null"`
}

func (r *Room) String() string {
	return r.Code
}

// Building is the first letter of the room code.
func (r *Room) Building() string {
	if r.Code == "" {
		return ""
	}
	return r.Code[:1]
}

// Status needs CurrentLeasing.Tenant loaded to tell occupied rooms apart.
func (r *Room) Status() RoomStatus {
	if r.CurrentLeasingID == nil {
		return StatusEmpty
	}
	if r.CurrentLeasing == nil || r.CurrentLeasing.Tenant == nil {
		return StatusOccupied
	}
	switch t := r.CurrentLeasing.Tenant; {
	case t.Leaving:
		return StatusLeaving
	case t.Temporary:
		return StatusTemporary
	default:
		return StatusOccupied
	}
}

func (r *Room) CurrentTenant() *Tenant {
	if r.CurrentLeasing == nil {
		return nil
	}
	return r.CurrentLeasing.Tenant
}

func (r *Room) NextTenant() *Tenant {
	if r.NextLeasing == nil {
		return nil
	}
	return r.NextLeasing.Tenant
}

const (
	PaymentDirectDebit  = "direct_debit"
	PaymentBankTransfer = "bank_transfer"
	PaymentCheck        = "check"
	PaymentCash         = "cash"
	PaymentSpecial      = "special"
)

type Leasing struct {
	Model
	TenantID uint    `json:"tenantId" gorm:"not null;index"`
	Tenant   *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID;references:ID;constraint:OnDelete:RESTRICT"`
	RoomID   uint    `json:"roomId" gorm:"not null;index"`
	Room     *Room   `json:"room,omitempty" gorm:"foreignKey:RoomID;references:ID;constraint:OnDelete:RESTRICT"`

	Bail              *float64        `json:"bail" gorm:"type:decimal(7,2)"`
	APL               *datatypes.Date `json:"apl" gorm:"column:apl"`
	Payment           string          `json:"payment" gorm:"size:255" validate:"omitempty,oneof=direct_debit bank_transfer check cash special"`
	Rib               bool            `json:"rib"`
	InsuranceDeadline *datatypes.Date `json:"insuranceDeadline"`
	ContractSigned    bool            `json:"contractSigned"`
	ContractDate      *datatypes.Date `json:"contractDate"`
	CautionRib        bool            `json:"cautionRib"`
	IDGarant          bool            `json:"idGarant" gorm:"column:id_garant"`
	PayInSlip         bool            `json:"payInSlip"`
	TaxNotice         bool            `json:"taxNotice"`
	Stranger          bool            `json:"stranger"`
	CAF               string          `json:"caf" gorm:"column:caf;size:255"`

	ResidenceCertificate bool   `json:"residenceCertificate"`
	CheckGuarantee       bool   `json:"checkGuarantee"`
	Guarantee            bool   `json:"guarantee"`
	Photo                bool   `json:"photo"`
	InternalRulesSigned  bool   `json:"internalRulesSigned"`
	SchoolCertificate    bool   `json:"schoolCertificate"`
	DebitAuthorization   bool   `json:"debitAuthorization"`
	Issue                bool   `json:"issue"`
	MissingDocuments     string `json:"missingDocuments"`

	EntryDate     *datatypes.Date `json:"dateOfEntry" gorm:"column:date_of_entry"`
	DepartureDate *datatypes.Date `json:"dateOfDeparture" gorm:"column:date_of_departure"`
}

func (l *Leasing) String() string {
	from, to := "?", "?"
	if l.EntryDate != nil {
		from = time.Time(*l.EntryDate).Format("02/01/2006")
	}
	if l.DepartureDate != nil {
		to = time.Time(*l.DepartureDate).Format("02/01/2006")
	}
	tenant, room := "?", "?"
	if l.Tenant != nil {
		tenant = l.Tenant.String()
	}
	if l.Room != nil {
		room = l.Room.String()
	}
	return tenant + " dans " + room + " (" + from + " - " + to + ")"
}

// Map is a general floor plan, independent of rooms.
type Map struct {
	Model
	Name  string `json:"name" gorm:"size:255;not null" validate:"required,max=255"`
	Image string `json:"map" gorm:"column:map;size:255"`
}

func Models() []any {
	return []any{&School{}, &Renovation{}, &Rent{}, &Tenant{}, &Room{}, &Leasing{}, &Map{}}
}

// Constraints lists the foreign keys created after every table exists.
func Constraints() []storage.Constraint {
	return []storage.Constraint{
		{Model: &Tenant{}, Field: "School"},
		{Model: &Tenant{}, Field: "CurrentLeasing"},
		{Model: &Tenant{}, Field: "NextLeasing"},
		{Model: &Room{}, Field: "Rent"},
		{Model: &Room{}, Field: "Renovation"},
		{Model: &Room{}, Field: "CurrentLeasing"},
		{Model: &Room{}, Field: "NextLeasing"},
		{Model: &Leasing{}, Field: "Tenant"},
		{Model: &Leasing{}, Field: "Room"},
	}
}

func date(t time.Time) *datatypes.Date {
	d := datatypes.Date(t)
	return &d
}
