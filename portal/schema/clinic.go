package schema

var Genders = []Choice{
	{Value: "M", Label: "Муж"},
	{Value: "F", Label: "Жен"},
}

type Patient struct {
	Base

	LastName    string  `gorm:"size:100;not null" json:"last_name"`
	FirstName   string  `gorm:"size:100;not null" json:"first_name"`
	MiddleName  *string `gorm:"size:100" json:"middle_name"`
	Gender      string  `gorm:"size:10;not null" json:"gender"`
	DateOfBirth Date    `gorm:"not null" json:"date_of_birth"`
	Phone       *string `gorm:"size:20" json:"phone"`
	Address     *string `gorm:"size:255" json:"address"`

	MedicalCards []MedicalCard `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Visits       []Visit       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type MedicalCard struct {
	Base

	PatientId uint    `gorm:"not null;index" json:"patient"`
	IssueDate Date    `gorm:"not null" json:"issue_date"`
	Notes     *string `json:"notes"`

	Patient *Patient `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Position struct {
	Base

	Title    string  `gorm:"size:100;not null" json:"title"`
	Category *string `gorm:"size:100" json:"category"`
	Salary   float64 `gorm:"type:decimal(10,2);not null" json:"salary"`

	Doctors []Doctor `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

type Doctor struct {
	Base

	LastName    string  `gorm:"size:100;not null" json:"last_name"`
	FirstName   string  `gorm:"size:100;not null" json:"first_name"`
	MiddleName  *string `gorm:"size:100" json:"middle_name"`
	Gender      string  `gorm:"size:10;not null" json:"gender"`
	DateOfBirth Date    `gorm:"not null" json:"date_of_birth"`
	Education   *string `gorm:"size:255" json:"education"`
	PositionId  *uint   `gorm:"index" json:"position"`

	Position       *Position       `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	LaborContracts []LaborContract `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Schedules      []Schedule      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Offices        []Office        `gorm:"foreignKey:ResponsibleDoctorId;constraint:OnDelete:SET NULL" json:"-"`
	Visits         []Visit         `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

type LaborContract struct {
	Base

	DoctorId        uint    `gorm:"not null;index" json:"doctor"`
	StartDate       Date    `gorm:"not null" json:"start_date"`
	EndDate         *Date   `json:"end_date"`
	ContractDetails *string `json:"contract_details"`

	Doctor *Doctor `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Schedule struct {
	Base

	DoctorId     uint    `gorm:"not null;index" json:"doctor"`
	Date         Date    `gorm:"not null" json:"date"`
	IsWorkingDay bool    `gorm:"not null;default:false" json:"is_working_day"`
	Shift        *string `gorm:"size:50" json:"shift"`

	Doctor *Doctor `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Office struct {
	Base

	OfficeNumber        string  `gorm:"size:50;not null" json:"office_number"`
	WorkingHoursStart   Time    `gorm:"not null" json:"working_hours_start"`
	WorkingHoursEnd     Time    `gorm:"not null" json:"working_hours_end"`
	ResponsibleDoctorId *uint   `gorm:"index" json:"responsible_doctor"`
	InternalPhone       *string `gorm:"size:20" json:"internal_phone"`

	ResponsibleDoctor *Doctor `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Visits            []Visit `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

type Visit struct {
	Base

	PatientId             uint    `gorm:"not null;index" json:"patient"`
	DoctorId              *uint   `gorm:"index" json:"doctor"`
	VisitDate             Date    `gorm:"not null" json:"visit_date"`
	VisitTime             Time    `gorm:"not null" json:"visit_time"`
	OfficeId              *uint   `gorm:"index" json:"office"`
	CurrentConditionNotes *string `json:"current_condition_notes"`
	VisitStatus           *string `json:"visit_status"`

	Patient   *Patient         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Doctor    *Doctor          `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Office    *Office          `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Diagnoses []VisitDiagnosis `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Services  []VisitService   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Diagnosis struct {
	Base

	Name                            string  `gorm:"size:200;not null" json:"name"`
	IllnessType                     *string `gorm:"size:200" json:"illness_type"`
	Description                     *string `json:"description"`
	GeneralTreatmentRecommendations *string `json:"general_treatment_recommendations"`

	VisitDiagnoses []VisitDiagnosis `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type VisitDiagnosis struct {
	Base

	VisitId                 uint    `gorm:"not null;index" json:"visit"`
	DiagnosisId             uint    `gorm:"not null;index" json:"diagnosis"`
	SpecificRecommendations *string `json:"specific_recommendations"`
	VisitDiagnosisStatus    *string `gorm:"size:100" json:"visit_diagnosis_status"`

	Visit     *Visit     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Diagnosis *Diagnosis `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Service struct {
	Base

	Name        string  `gorm:"size:200;not null" json:"name"`
	Description *string `json:"description"`
	ServiceType *string `gorm:"size:100" json:"service_type"`

	Prices        []ServicePrice `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	VisitServices []VisitService `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type ServicePrice struct {
	Base

	ServiceId uint    `gorm:"not null;index" json:"service"`
	Price     float64 `gorm:"type:decimal(10,2);not null" json:"price"`
	ValidFrom Date    `gorm:"not null" json:"valid_from"`
	ValidTo   *Date   `json:"valid_to"`

	Service *Service `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type VisitService struct {
	Base

	VisitId       uint    `gorm:"not null;index" json:"visit"`
	ServiceId     uint    `gorm:"not null;index" json:"service"`
	Quantity      int     `gorm:"not null;default:1" json:"quantity"`
	PriceAtTime   float64 `gorm:"type:decimal(10,2);not null" json:"price_at_time"`
	Status        *string `gorm:"size:100" json:"status"`
	PaymentStatus *string `gorm:"size:100" json:"payment_status"`

	Payments []Payment `gorm:"constraint:OnDelete:CASCADE" json:"payments,omitempty"`

	Visit   *Visit   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Service *Service `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func NewVisitService() VisitService {
	return VisitService{Quantity: 1}
}

type Payment struct {
	Base

	VisitServiceId uint    `gorm:"not null;index" json:"visit_service"`
	Amount         float64 `gorm:"type:decimal(10,2);not null" json:"amount"`
	PaymentDate    Date    `gorm:"not null" json:"payment_date"`

	VisitService *VisitService `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
