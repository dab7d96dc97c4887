package services

import (
	"net/url"

	"coursework/portal/access"
	"coursework/portal/auth"
	"coursework/portal/schema"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// CarService serves the car registry: HTML pages for cars and owners and a
// REST API for cars, owners, ownerships and drivers licenses.
type CarService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	views    access.Renderer

	cars       *access.Resource[schema.Car, *schema.Car]
	owners     *access.Resource[schema.Owner, *schema.Owner]
	ownerships *access.Resource[schema.Ownership, *schema.Ownership]
	licenses   *access.Resource[schema.DriversLicense, *schema.DriversLicense]
}

func NewCarService(db *gorm.DB, userAuth auth.IdentityProvider, views access.Renderer) CarService {
	return CarService{
		db:       db,
		userAuth: userAuth,
		views:    views,
		cars: access.New[schema.Car](db, access.Options[schema.Car]{
			Name:     "car",
			Order:    "brand, model, id",
			Rules:    []access.Rule[schema.Car]{validateCar},
			Conflict: "A car with this license plate already exists.",
		}),
		owners: access.New[schema.Owner](db, access.Options[schema.Owner]{
			Name:     "owner",
			Order:    "last_name, first_name, id",
			Rules:    []access.Rule[schema.Owner]{validateOwner},
			Conflict: "An owner with this passport number already exists.",
		}),
		ownerships: access.New[schema.Ownership](db, access.Options[schema.Ownership]{
			Name:     "ownership",
			Order:    "start_date, id",
			Rules:    []access.Rule[schema.Ownership]{validateOwnership},
			Conflict: ownershipExists,
		}),
		licenses: access.New[schema.DriversLicense](db, access.Options[schema.DriversLicense]{
			Name:     "drivers license",
			Order:    "issue_date desc, id",
			Rules:    []access.Rule[schema.DriversLicense]{validateLicense},
			Conflict: "A drivers license with this number already exists.",
		}),
	}
}

const ownershipExists = "Ownership with this owner, car and start date already exists."

func validateCar(txn *gorm.DB, car *schema.Car) error {
	v := access.NewValidator()
	v.RequiredString("license_plate", car.LicensePlate, 15)
	v.RequiredString("brand", car.Brand, 20)
	v.RequiredString("model", car.Model, 20)
	v.OptionalString("color", car.Color, 30)
	if car.LicensePlate != "" {
		err := v.Unique(txn, "license_plate", "Car with this license plate already exists.", &schema.Car{}, car.Id,
			map[string]interface{}{"license_plate": car.LicensePlate})
		if err != nil {
			return err
		}
	}
	return v.Err()
}

func validateOwner(txn *gorm.DB, owner *schema.Owner) error {
	v := access.NewValidator()
	v.RequiredString("first_name", owner.FirstName, 150)
	v.RequiredString("last_name", owner.LastName, 150)
	v.RequiredString("passport_number", owner.PassportNumber, 10)
	v.RequiredString("home_address", owner.HomeAddress, 255)
	v.RequiredString("nationality", owner.Nationality, 50)
	if owner.PassportNumber != "" {
		err := v.Unique(txn, "passport_number", "Owner with this passport number already exists.", &schema.Owner{}, owner.Id,
			map[string]interface{}{"passport_number": owner.PassportNumber})
		if err != nil {
			return err
		}
	}
	return v.Err()
}

func validateOwnership(txn *gorm.DB, o *schema.Ownership) error {
	v := access.NewValidator()
	if v.RequiredRef("owner", o.OwnerId) {
		if err := v.Exists(txn, "owner", &schema.Owner{}, o.OwnerId); err != nil {
			return err
		}
	}
	if v.RequiredRef("car", o.CarId) {
		if err := v.Exists(txn, "car", &schema.Car{}, o.CarId); err != nil {
			return err
		}
	}
	v.RequiredDate("start_date", o.StartDate)
	v.NotBefore("end_date", o.EndDate, o.StartDate)

	if o.OwnerId != 0 && o.CarId != 0 && !o.StartDate.IsZero() {
		err := v.Unique(txn, access.NonFieldErrors, ownershipExists, &schema.Ownership{}, o.Id,
			map[string]interface{}{"owner_id": o.OwnerId, "car_id": o.CarId, "start_date": o.StartDate})
		if err != nil {
			return err
		}
	}
	return v.Err()
}

func validateLicense(txn *gorm.DB, l *schema.DriversLicense) error {
	v := access.NewValidator()
	if v.RequiredRef("owner", l.OwnerId) {
		if err := v.Exists(txn, "owner", &schema.Owner{}, l.OwnerId); err != nil {
			return err
		}
	}
	v.RequiredString("license_number", l.LicenseNumber, 10)
	v.OneOf("license_type", l.LicenseType, schema.LicenseTypes)
	v.RequiredDate("issue_date", l.IssueDate)
	if l.LicenseNumber != "" {
		err := v.Unique(txn, "license_number", "Drivers license with this license number already exists.", &schema.DriversLicense{}, l.Id,
			map[string]interface{}{"license_number": l.LicenseNumber})
		if err != nil {
			return err
		}
	}
	return v.Err()
}

func optional(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalDate(value *schema.Date) string {
	if value == nil {
		return ""
	}
	return value.String()
}

func (s *CarService) CarPages() *access.HTML[schema.Car, *schema.Car] {
	return &access.HTML[schema.Car, *schema.Car]{
		Resource:    s.cars,
		Renderer:    s.views,
		Title:       "Cars",
		BasePath:    "/cars",
		SelectField: "selected_cars",
		Label:       func(c schema.Car) string { return c.String() },
		Writers:     chi.Middlewares{auth.RequireLogin(LoginPath)},
		Columns: []access.Column[schema.Car]{
			{Label: "License plate", Value: func(c schema.Car) string { return c.LicensePlate }},
			{Label: "Brand", Value: func(c schema.Car) string { return c.Brand }},
			{Label: "Model", Value: func(c schema.Car) string { return c.Model }},
			{Label: "Color", Value: func(c schema.Car) string { return optional(c.Color) }},
		},
		Form: access.Form[schema.Car]{
			Fields: []access.Field{
				{Name: "license_plate", Label: "License plate", Kind: "text", Required: true},
				{Name: "brand", Label: "Brand", Kind: "text", Required: true},
				{Name: "model", Label: "Model", Kind: "text", Required: true},
				{Name: "color", Label: "Color", Kind: "text"},
			},
			Values: func(c schema.Car) access.FormValues {
				return access.FormValues{}.
					Set("license_plate", c.LicensePlate).
					Set("brand", c.Brand).
					Set("model", c.Model).
					SetOptional("color", c.Color)
			},
			Decode: func(form url.Values, c *schema.Car) *access.ValidationError {
				f := access.NewFormReader(form)
				c.LicensePlate = f.String("license_plate")
				c.Brand = f.String("brand")
				c.Model = f.String("model")
				c.Color = f.OptionalString("color")
				return f.Err()
			},
		},
	}
}

func (s *CarService) OwnerPages() *access.HTML[schema.Owner, *schema.Owner] {
	columns := []access.Column[schema.Owner]{
		{Label: "First name", Value: func(o schema.Owner) string { return o.FirstName }},
		{Label: "Last name", Value: func(o schema.Owner) string { return o.LastName }},
		{Label: "Birth date", Value: func(o schema.Owner) string { return optionalDate(o.BirthDate) }},
		{Label: "Passport number", Value: func(o schema.Owner) string { return o.PassportNumber }},
		{Label: "Nationality", Value: func(o schema.Owner) string { return o.Nationality }},
	}

	return &access.HTML[schema.Owner, *schema.Owner]{
		Resource:    s.owners,
		Renderer:    s.views,
		Title:       "Owners",
		BasePath:    "/owners",
		SelectField: "selected_owners",
		Label:       func(o schema.Owner) string { return o.String() },
		Writers:     chi.Middlewares{auth.RequireLogin(LoginPath)},
		Columns:     columns,
		Details: append(columns, access.Column[schema.Owner]{
			Label: "Home address", Value: func(o schema.Owner) string { return o.HomeAddress },
		}),
		Form: access.Form[schema.Owner]{
			Fields: []access.Field{
				{Name: "first_name", Label: "First name", Kind: "text", Required: true},
				{Name: "last_name", Label: "Last name", Kind: "text", Required: true},
				{Name: "birth_date", Label: "Birth date", Kind: "date"},
				{Name: "passport_number", Label: "Passport number", Kind: "text", Required: true},
				{Name: "home_address", Label: "Home address", Kind: "text", Required: true},
				{Name: "nationality", Label: "Nationality", Kind: "text", Required: true},
			},
			Values: func(o schema.Owner) access.FormValues {
				return access.FormValues{}.
					Set("first_name", o.FirstName).
					Set("last_name", o.LastName).
					SetOptionalDate("birth_date", o.BirthDate).
					Set("passport_number", o.PassportNumber).
					Set("home_address", o.HomeAddress).
					Set("nationality", o.Nationality)
			},
			Decode: func(form url.Values, o *schema.Owner) *access.ValidationError {
				f := access.NewFormReader(form)
				o.FirstName = f.String("first_name")
				o.LastName = f.String("last_name")
				o.BirthDate = f.OptionalDate("birth_date")
				o.PassportNumber = f.String("passport_number")
				o.HomeAddress = f.String("home_address")
				o.Nationality = f.String("nationality")
				return f.Err()
			},
		},
	}
}

// Routes serves the REST API. Reads are public, writes need a signed-in user.
func (s *CarService) Routes() chi.Router {
	r := chi.NewRouter()

	mount := func(path string, register func(r chi.Router, ops access.Op)) {
		r.Route(path, func(r chi.Router) {
			register(r, access.OpList|access.OpDetail)
			r.Group(func(r chi.Router) {
				r.Use(s.userAuth.AuthMiddleware()...)
				register(r, access.OpCreate|access.OpUpdate|access.OpDelete|access.OpBulkDelete)
			})
		})
	}

	cars := access.REST[schema.Car, *schema.Car]{Resource: s.cars}
	owners := access.REST[schema.Owner, *schema.Owner]{Resource: s.owners}
	ownerships := access.REST[schema.Ownership, *schema.Ownership]{Resource: s.ownerships}
	licenses := access.REST[schema.DriversLicense, *schema.DriversLicense]{Resource: s.licenses}

	mount("/cars", cars.Register)
	mount("/owners", owners.Register)
	mount("/ownerships", ownerships.Register)
	mount("/licenses", licenses.Register)

	return r
}
