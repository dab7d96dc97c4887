package services

import (
	"net/http"

	"coursework/portal/access"
	"coursework/portal/auth"
	"coursework/portal/schema"
	"coursework/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// ClinicService exposes the clinic schema over REST. Every endpoint requires
// a signed-in user.
type ClinicService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider

	patients       *access.Resource[schema.Patient, *schema.Patient]
	medicalCards   *access.Resource[schema.MedicalCard, *schema.MedicalCard]
	positions      *access.Resource[schema.Position, *schema.Position]
	doctors        *access.Resource[schema.Doctor, *schema.Doctor]
	laborContracts *access.Resource[schema.LaborContract, *schema.LaborContract]
	schedules      *access.Resource[schema.Schedule, *schema.Schedule]
	offices        *access.Resource[schema.Office, *schema.Office]
	visits         *access.Resource[schema.Visit, *schema.Visit]
	diagnoses      *access.Resource[schema.Diagnosis, *schema.Diagnosis]
	visitDiagnoses *access.Resource[schema.VisitDiagnosis, *schema.VisitDiagnosis]
	services       *access.Resource[schema.Service, *schema.Service]
	servicePrices  *access.Resource[schema.ServicePrice, *schema.ServicePrice]
	visitServices  *access.Resource[schema.VisitService, *schema.VisitService]
	payments       *access.Resource[schema.Payment, *schema.Payment]
}

func NewClinicService(db *gorm.DB, userAuth auth.IdentityProvider) ClinicService {
	return ClinicService{
		db:       db,
		userAuth: userAuth,
		patients: access.New[schema.Patient](db, access.Options[schema.Patient]{
			Name:  "patient",
			Order: "last_name, first_name, id",
			Rules: []access.Rule[schema.Patient]{validatePatient},
		}),
		medicalCards: access.New[schema.MedicalCard](db, access.Options[schema.MedicalCard]{
			Name:  "medical card",
			Rules: []access.Rule[schema.MedicalCard]{validateMedicalCard},
		}),
		positions: access.New[schema.Position](db, access.Options[schema.Position]{
			Name:  "position",
			Order: "title, id",
			Rules: []access.Rule[schema.Position]{validatePosition},
		}),
		doctors: access.New[schema.Doctor](db, access.Options[schema.Doctor]{
			Name:  "doctor",
			Order: "last_name, first_name, id",
			Rules: []access.Rule[schema.Doctor]{validateDoctor},
		}),
		laborContracts: access.New[schema.LaborContract](db, access.Options[schema.LaborContract]{
			Name:  "labor contract",
			Rules: []access.Rule[schema.LaborContract]{validateLaborContract},
		}),
		schedules: access.New[schema.Schedule](db, access.Options[schema.Schedule]{
			Name:  "schedule",
			Order: "date, id",
			Rules: []access.Rule[schema.Schedule]{validateSchedule},
		}),
		offices: access.New[schema.Office](db, access.Options[schema.Office]{
			Name:  "office",
			Order: "office_number, id",
			Rules: []access.Rule[schema.Office]{validateOffice},
		}),
		visits: access.New[schema.Visit](db, access.Options[schema.Visit]{
			Name:  "visit",
			Order: "visit_date, visit_time, id",
			Rules: []access.Rule[schema.Visit]{validateVisit},
		}),
		diagnoses: access.New[schema.Diagnosis](db, access.Options[schema.Diagnosis]{
			Name:  "diagnosis",
			Order: "name, id",
			Rules: []access.Rule[schema.Diagnosis]{validateDiagnosis},
		}),
		visitDiagnoses: access.New[schema.VisitDiagnosis](db, access.Options[schema.VisitDiagnosis]{
			Name:  "visit diagnosis",
			Rules: []access.Rule[schema.VisitDiagnosis]{validateVisitDiagnosis},
		}),
		services: access.New[schema.Service](db, access.Options[schema.Service]{
			Name:  "service",
			Order: "name, id",
			Rules: []access.Rule[schema.Service]{validateService},
		}),
		servicePrices: access.New[schema.ServicePrice](db, access.Options[schema.ServicePrice]{
			Name:  "service price",
			Order: "valid_from, id",
			Rules: []access.Rule[schema.ServicePrice]{validateServicePrice},
		}),
		visitServices: access.New[schema.VisitService](db, access.Options[schema.VisitService]{
			Name:     "visit service",
			Preloads: []string{"Payments"},
			Rules:    []access.Rule[schema.VisitService]{validateVisitService},
			Nested:   []string{"Payments"},
			Template: schema.NewVisitService,
		}),
		payments: access.New[schema.Payment](db, access.Options[schema.Payment]{
			Name:  "payment",
			Order: "payment_date, id",
			Rules: []access.Rule[schema.Payment]{validatePayment},
		}),
	}
}

func validatePerson(v *access.Validator, lastName, firstName string, middleName *string, gender string, dateOfBirth schema.Date) {
	v.RequiredString("last_name", lastName, 100)
	v.RequiredString("first_name", firstName, 100)
	v.OptionalString("middle_name", middleName, 100)
	v.OneOf("gender", gender, schema.Genders)
	v.RequiredDate("date_of_birth", dateOfBirth)
}

func validatePatient(txn *gorm.DB, p *schema.Patient) error {
	v := access.NewValidator()
	validatePerson(v, p.LastName, p.FirstName, p.MiddleName, p.Gender, p.DateOfBirth)
	v.OptionalString("phone", p.Phone, 20)
	v.OptionalString("address", p.Address, 255)
	return v.Err()
}

func validateMedicalCard(txn *gorm.DB, c *schema.MedicalCard) error {
	v := access.NewValidator()
	if v.RequiredRef("patient", c.PatientId) {
		if err := v.Exists(txn, "patient", &schema.Patient{}, c.PatientId); err != nil {
			return err
		}
	}
	v.RequiredDate("issue_date", c.IssueDate)
	return v.Err()
}

func validatePosition(txn *gorm.DB, p *schema.Position) error {
	v := access.NewValidator()
	v.RequiredString("title", p.Title, 100)
	v.OptionalString("category", p.Category, 100)
	v.AtLeast("salary", p.Salary, 0)
	return v.Err()
}

func validateDoctor(txn *gorm.DB, d *schema.Doctor) error {
	v := access.NewValidator()
	validatePerson(v, d.LastName, d.FirstName, d.MiddleName, d.Gender, d.DateOfBirth)
	v.OptionalString("education", d.Education, 255)
	if err := v.ExistsOptional(txn, "position", &schema.Position{}, d.PositionId); err != nil {
		return err
	}
	return v.Err()
}

func validateLaborContract(txn *gorm.DB, c *schema.LaborContract) error {
	v := access.NewValidator()
	if v.RequiredRef("doctor", c.DoctorId) {
		if err := v.Exists(txn, "doctor", &schema.Doctor{}, c.DoctorId); err != nil {
			return err
		}
	}
	v.RequiredDate("start_date", c.StartDate)
	v.NotBefore("end_date", c.EndDate, c.StartDate)
	return v.Err()
}

func validateSchedule(txn *gorm.DB, s *schema.Schedule) error {
	v := access.NewValidator()
	if v.RequiredRef("doctor", s.DoctorId) {
		if err := v.Exists(txn, "doctor", &schema.Doctor{}, s.DoctorId); err != nil {
			return err
		}
	}
	v.RequiredDate("date", s.Date)
	v.OptionalString("shift", s.Shift, 50)
	return v.Err()
}

func validateOffice(txn *gorm.DB, o *schema.Office) error {
	v := access.NewValidator()
	v.RequiredString("office_number", o.OfficeNumber, 50)
	start := v.RequiredTime("working_hours_start", o.WorkingHoursStart)
	end := v.RequiredTime("working_hours_end", o.WorkingHoursEnd)
	if start && end && !o.WorkingHoursStart.Before(o.WorkingHoursEnd) {
		v.Fail("working_hours_end", "Working hours must end after they start.")
	}
	v.OptionalString("internal_phone", o.InternalPhone, 20)
	if err := v.ExistsOptional(txn, "responsible_doctor", &schema.Doctor{}, o.ResponsibleDoctorId); err != nil {
		return err
	}
	return v.Err()
}

func validateVisit(txn *gorm.DB, visit *schema.Visit) error {
	v := access.NewValidator()
	if v.RequiredRef("patient", visit.PatientId) {
		if err := v.Exists(txn, "patient", &schema.Patient{}, visit.PatientId); err != nil {
			return err
		}
	}
	if err := v.ExistsOptional(txn, "doctor", &schema.Doctor{}, visit.DoctorId); err != nil {
		return err
	}
	if err := v.ExistsOptional(txn, "office", &schema.Office{}, visit.OfficeId); err != nil {
		return err
	}
	v.RequiredDate("visit_date", visit.VisitDate)
	v.RequiredTime("visit_time", visit.VisitTime)
	return v.Err()
}

func validateDiagnosis(txn *gorm.DB, d *schema.Diagnosis) error {
	v := access.NewValidator()
	v.RequiredString("name", d.Name, 200)
	v.OptionalString("illness_type", d.IllnessType, 200)
	return v.Err()
}

func validateVisitDiagnosis(txn *gorm.DB, d *schema.VisitDiagnosis) error {
	v := access.NewValidator()
	if v.RequiredRef("visit", d.VisitId) {
		if err := v.Exists(txn, "visit", &schema.Visit{}, d.VisitId); err != nil {
			return err
		}
	}
	if v.RequiredRef("diagnosis", d.DiagnosisId) {
		if err := v.Exists(txn, "diagnosis", &schema.Diagnosis{}, d.DiagnosisId); err != nil {
			return err
		}
	}
	v.OptionalString("visit_diagnosis_status", d.VisitDiagnosisStatus, 100)
	return v.Err()
}

func validateService(txn *gorm.DB, s *schema.Service) error {
	v := access.NewValidator()
	v.RequiredString("name", s.Name, 200)
	v.OptionalString("service_type", s.ServiceType, 100)
	return v.Err()
}

func validateServicePrice(txn *gorm.DB, p *schema.ServicePrice) error {
	v := access.NewValidator()
	if v.RequiredRef("service", p.ServiceId) {
		if err := v.Exists(txn, "service", &schema.Service{}, p.ServiceId); err != nil {
			return err
		}
	}
	v.AtLeast("price", p.Price, 0)
	v.RequiredDate("valid_from", p.ValidFrom)
	v.NotBefore("valid_to", p.ValidTo, p.ValidFrom)
	return v.Err()
}

func validateVisitService(txn *gorm.DB, s *schema.VisitService) error {
	v := access.NewValidator()
	if v.RequiredRef("visit", s.VisitId) {
		if err := v.Exists(txn, "visit", &schema.Visit{}, s.VisitId); err != nil {
			return err
		}
	}
	if v.RequiredRef("service", s.ServiceId) {
		if err := v.Exists(txn, "service", &schema.Service{}, s.ServiceId); err != nil {
			return err
		}
	}
	if s.Quantity < 1 {
		v.Fail("quantity", "Ensure this value is greater than or equal to 1.")
	}
	v.AtLeast("price_at_time", s.PriceAtTime, 0)
	v.OptionalString("status", s.Status, 100)
	v.OptionalString("payment_status", s.PaymentStatus, 100)

	for i := range s.Payments {
		payment := &s.Payments[i]
		// Nested payments always belong to the enclosing visit service.
		payment.Id = 0
		payment.VisitServiceId = s.Id
		if payment.PaymentDate.IsZero() {
			payment.PaymentDate = schema.Today()
		}
		if payment.Amount <= 0 {
			v.Fail("payments", "Ensure every payment amount is greater than 0.")
		}
	}
	return v.Err()
}

func validatePayment(txn *gorm.DB, p *schema.Payment) error {
	v := access.NewValidator()
	if v.RequiredRef("visit_service", p.VisitServiceId) {
		if err := v.Exists(txn, "visit_service", &schema.VisitService{}, p.VisitServiceId); err != nil {
			return err
		}
	}
	v.Positive("amount", p.Amount)
	if p.PaymentDate.IsZero() {
		p.PaymentDate = schema.Today()
	}
	return v.Err()
}

func (s *ClinicService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Mount("/patients", (&access.REST[schema.Patient, *schema.Patient]{Resource: s.patients}).Routes())
	r.Mount("/medicalcards", (&access.REST[schema.MedicalCard, *schema.MedicalCard]{Resource: s.medicalCards}).Routes())
	r.Mount("/positions", (&access.REST[schema.Position, *schema.Position]{Resource: s.positions}).Routes())
	r.Mount("/doctors", (&access.REST[schema.Doctor, *schema.Doctor]{Resource: s.doctors}).Routes())
	r.Mount("/laborcontracts", (&access.REST[schema.LaborContract, *schema.LaborContract]{Resource: s.laborContracts}).Routes())
	r.Mount("/schedules", (&access.REST[schema.Schedule, *schema.Schedule]{Resource: s.schedules}).Routes())
	r.Mount("/offices", (&access.REST[schema.Office, *schema.Office]{Resource: s.offices}).Routes())
	r.Mount("/diagnoses", (&access.REST[schema.Diagnosis, *schema.Diagnosis]{Resource: s.diagnoses}).Routes())
	r.Mount("/visitdiagnoses", (&access.REST[schema.VisitDiagnosis, *schema.VisitDiagnosis]{Resource: s.visitDiagnoses}).Routes())
	r.Mount("/services", (&access.REST[schema.Service, *schema.Service]{Resource: s.services}).Routes())
	r.Mount("/serviceprices", (&access.REST[schema.ServicePrice, *schema.ServicePrice]{Resource: s.servicePrices}).Routes())
	r.Mount("/visitservices", (&access.REST[schema.VisitService, *schema.VisitService]{Resource: s.visitServices}).Routes())
	r.Mount("/payments", (&access.REST[schema.Payment, *schema.Payment]{Resource: s.payments}).Routes())

	visits := access.REST[schema.Visit, *schema.Visit]{Resource: s.visits}
	r.Route("/visits", func(r chi.Router) {
		visits.Register(r, access.OpAll)
		r.Get("/{id}/full/", s.VisitFull)
	})

	return r
}

type PatientInfo struct {
	Id          uint        `json:"id"`
	LastName    string      `json:"last_name"`
	FirstName   string      `json:"first_name"`
	MiddleName  *string     `json:"middle_name"`
	Gender      string      `json:"gender"`
	DateOfBirth schema.Date `json:"date_of_birth"`
}

type DoctorInfo struct {
	Id         uint    `json:"id"`
	LastName   string  `json:"last_name"`
	FirstName  string  `json:"first_name"`
	MiddleName *string `json:"middle_name"`
	Position   *string `json:"position"`
}

type OfficeInfo struct {
	Id                uint   `json:"id"`
	OfficeNumber      string `json:"office_number"`
	WorkingHoursStart string `json:"working_hours_start"`
	WorkingHoursEnd   string `json:"working_hours_end"`
}

type VisitDiagnosisInfo struct {
	Id                      uint             `json:"id"`
	Diagnosis               schema.Diagnosis `json:"diagnosis"`
	SpecificRecommendations *string          `json:"specific_recommendations"`
	VisitDiagnosisStatus    *string          `json:"visit_diagnosis_status"`
}

type VisitServiceInfo struct {
	Id            uint             `json:"id"`
	Service       schema.Service   `json:"service"`
	Quantity      int              `json:"quantity"`
	PriceAtTime   float64          `json:"price_at_time"`
	Total         float64          `json:"total"`
	Status        *string          `json:"status"`
	PaymentStatus *string          `json:"payment_status"`
	Payments      []schema.Payment `json:"payments"`
	Paid          float64          `json:"paid"`
}

type VisitInfo struct {
	Id                    uint                 `json:"id"`
	Patient               PatientInfo          `json:"patient"`
	Doctor                *DoctorInfo          `json:"doctor"`
	Office                *OfficeInfo          `json:"office"`
	VisitDate             schema.Date          `json:"visit_date"`
	VisitTime             string               `json:"visit_time"`
	CurrentConditionNotes *string              `json:"current_condition_notes"`
	VisitStatus           *string              `json:"visit_status"`
	Diagnoses             []VisitDiagnosisInfo `json:"diagnoses"`
	Services              []VisitServiceInfo   `json:"services"`
	Total                 float64              `json:"total"`
}

func convertToVisitInfo(visit schema.Visit) VisitInfo {
	info := VisitInfo{
		Id:                    visit.Id,
		VisitDate:             visit.VisitDate,
		VisitTime:             schema.FormatTime(visit.VisitTime),
		CurrentConditionNotes: visit.CurrentConditionNotes,
		VisitStatus:           visit.VisitStatus,
		Diagnoses:             make([]VisitDiagnosisInfo, 0, len(visit.Diagnoses)),
		Services:              make([]VisitServiceInfo, 0, len(visit.Services)),
	}

	if p := visit.Patient; p != nil {
		info.Patient = PatientInfo{
			Id: p.Id, LastName: p.LastName, FirstName: p.FirstName, MiddleName: p.MiddleName,
			Gender: p.Gender, DateOfBirth: p.DateOfBirth,
		}
	}

	if d := visit.Doctor; d != nil {
		info.Doctor = &DoctorInfo{Id: d.Id, LastName: d.LastName, FirstName: d.FirstName, MiddleName: d.MiddleName}
		if d.Position != nil {
			info.Doctor.Position = &d.Position.Title
		}
	}

	if o := visit.Office; o != nil {
		info.Office = &OfficeInfo{
			Id:                o.Id,
			OfficeNumber:      o.OfficeNumber,
			WorkingHoursStart: schema.FormatTime(o.WorkingHoursStart),
			WorkingHoursEnd:   schema.FormatTime(o.WorkingHoursEnd),
		}
	}

	for _, d := range visit.Diagnoses {
		entry := VisitDiagnosisInfo{
			Id:                      d.Id,
			SpecificRecommendations: d.SpecificRecommendations,
			VisitDiagnosisStatus:    d.VisitDiagnosisStatus,
		}
		if d.Diagnosis != nil {
			entry.Diagnosis = *d.Diagnosis
		}
		info.Diagnoses = append(info.Diagnoses, entry)
	}

	for _, vs := range visit.Services {
		entry := VisitServiceInfo{
			Id:            vs.Id,
			Quantity:      vs.Quantity,
			PriceAtTime:   vs.PriceAtTime,
			Total:         float64(vs.Quantity) * vs.PriceAtTime,
			Status:        vs.Status,
			PaymentStatus: vs.PaymentStatus,
			Payments:      vs.Payments,
		}
		if entry.Payments == nil {
			entry.Payments = []schema.Payment{}
		}
		if vs.Service != nil {
			entry.Service = *vs.Service
		}
		for _, p := range vs.Payments {
			entry.Paid += p.Amount
		}
		info.Total += entry.Total
		info.Services = append(info.Services, entry)
	}

	return info
}

// VisitFull returns a visit with its patient, doctor, office, diagnoses and
// services (with their payments). Each relation is loaded with one query.
func (s *ClinicService) VisitFull(w http.ResponseWriter, r *http.Request) {
	visitId, err := utils.URLParamUint(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	visit, err := s.visits.Detail(r.Context(), visitId, access.Preload(
		"Patient", "Doctor", "Doctor.Position", "Office",
		"Diagnoses", "Diagnoses.Diagnosis",
		"Services", "Services.Service", "Services.Payments",
	))
	if err != nil {
		access.WriteError(w, "retrieving visit", err)
		return
	}
	utils.WriteJsonResponse(w, convertToVisitInfo(visit))
}
