package schema

import "fmt"

var LicenseTypes = []Choice{
	{Value: "A", Label: "Type A"},
	{Value: "B", Label: "Type B"},
	{Value: "C", Label: "Type C"},
}

type Car struct {
	Base

	LicensePlate string  `gorm:"size:15;not null;uniqueIndex" json:"license_plate"`
	Brand        string  `gorm:"size:20;not null" json:"brand"`
	Model        string  `gorm:"size:20;not null" json:"model"`
	Color        *string `gorm:"size:30" json:"color"`

	Ownerships []Ownership `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (c Car) String() string {
	return fmt.Sprintf("%v %v (%v)", c.Brand, c.Model, c.LicensePlate)
}

type Owner struct {
	Base

	FirstName      string `gorm:"size:150;not null" json:"first_name"`
	LastName       string `gorm:"size:150;not null" json:"last_name"`
	BirthDate      *Date  `json:"birth_date"`
	PassportNumber string `gorm:"size:10;not null;uniqueIndex" json:"passport_number"`
	HomeAddress    string `gorm:"size:255;not null" json:"home_address"`
	Nationality    string `gorm:"size:50;not null" json:"nationality"`

	Ownerships      []Ownership      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	DriversLicenses []DriversLicense `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (o Owner) String() string {
	return fmt.Sprintf("%v %v", o.FirstName, o.LastName)
}

type Ownership struct {
	Base

	OwnerId   uint  `gorm:"not null;uniqueIndex:idx_ownership_owner_car_start" json:"owner"`
	CarId     uint  `gorm:"not null;uniqueIndex:idx_ownership_owner_car_start" json:"car"`
	StartDate Date  `gorm:"not null;uniqueIndex:idx_ownership_owner_car_start" json:"start_date"`
	EndDate   *Date `json:"end_date"`

	Owner *Owner `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Car   *Car   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type DriversLicense struct {
	Base

	OwnerId       uint   `gorm:"not null;index" json:"owner"`
	LicenseNumber string `gorm:"size:10;not null;uniqueIndex" json:"license_number"`
	LicenseType   string `gorm:"size:2;not null" json:"license_type"`
	IssueDate     Date   `gorm:"not null" json:"issue_date"`

	Owner *Owner `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
