package tests

import (
	"errors"
	"strings"
	"testing"

	"coursework/portal/schema"
	"coursework/portal/services"
)

const clinic = "/api/clinic"

type clinicRefs struct {
	patient  uint
	position uint
	doctor   uint
	office   uint
	visit    uint
}

func createClinicRefs(t *testing.T, c client) clinicRefs {
	var refs clinicRefs
	var err error

	refs.patient, err = c.create(clinic+"/patients", map[string]interface{}{
		"last_name": "Ivanov", "first_name": "Ivan", "gender": "M", "date_of_birth": "1990-03-01",
	})
	if err != nil {
		t.Fatal(err)
	}

	refs.position, err = c.create(clinic+"/positions", map[string]interface{}{
		"title": "Therapist", "salary": 85000,
	})
	if err != nil {
		t.Fatal(err)
	}

	refs.doctor, err = c.create(clinic+"/doctors", map[string]interface{}{
		"last_name": "Petrova", "first_name": "Anna", "gender": "F", "date_of_birth": "1980-07-15", "position": refs.position,
	})
	if err != nil {
		t.Fatal(err)
	}

	refs.office, err = c.create(clinic+"/offices", map[string]interface{}{
		"office_number": "101", "working_hours_start": "09:00:00", "working_hours_end": "18:00:00", "responsible_doctor": refs.doctor,
	})
	if err != nil {
		t.Fatal(err)
	}

	refs.visit, err = c.create(clinic+"/visits", map[string]interface{}{
		"patient": refs.patient, "doctor": refs.doctor, "office": refs.office,
		"visit_date": "2024-02-10", "visit_time": "10:30:00", "visit_status": "done",
	})
	if err != nil {
		t.Fatal(err)
	}

	return refs
}

func TestClinicRequiresLogin(t *testing.T) {
	env := setupTestEnv(t)

	anon := env.newClient()
	var patients []map[string]interface{}
	err := anon.list(clinic+"/patients", &patients)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("clinic api should require login: %v", err)
	}

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}
	if err := user.list(clinic+"/patients", &patients); err != nil {
		t.Fatal(err)
	}
	if len(patients) != 0 {
		t.Fatalf("expected no patients: %v", patients)
	}
}

func TestClinicValidation(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.create(clinic+"/patients", map[string]interface{}{
		"last_name": "Ivanov", "gender": "X", "date_of_birth": "1990-03-01",
	})
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "first_name") || !strings.Contains(err.Error(), "gender") {
		t.Fatalf("invalid patient should be rejected: %v", err)
	}

	_, err = user.create(clinic+"/offices", map[string]interface{}{
		"office_number": "101", "working_hours_start": "18:00:00", "working_hours_end": "09:00:00",
	})
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "working_hours_end") {
		t.Fatalf("office closing before it opens should be rejected: %v", err)
	}

	_, err = user.create(clinic+"/offices", map[string]interface{}{
		"office_number": "102", "working_hours_start": "nine", "working_hours_end": "25:99",
	})
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), `"working_hours_start":["Enter a valid time."]`) || !strings.Contains(err.Error(), `"working_hours_end":["Enter a valid time."]`) {
		t.Fatalf("office with unrecognized hours should be rejected: %v", err)
	}

	_, err = user.create(clinic+"/offices", map[string]interface{}{"office_number": "102"})
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), `"working_hours_start":["This field is required."]`) {
		t.Fatalf("office without hours should be rejected: %v", err)
	}

	_, err = user.create(clinic+"/medicalcards", map[string]interface{}{
		"patient": 42, "issue_date": "2024-01-01",
	})
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "object does not exist") {
		t.Fatalf("card of missing patient should be rejected: %v", err)
	}

	refs := createClinicRefs(t, user)

	_, err = user.create(clinic+"/laborcontracts", map[string]interface{}{
		"doctor": refs.doctor, "start_date": "2024-01-01", "end_date": "2023-01-01",
	})
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "end_date") {
		t.Fatalf("contract ending before it starts should be rejected: %v", err)
	}

	for _, value := range []string{"not a time", "24:00", "10:60"} {
		_, err = user.create(clinic+"/visits", map[string]interface{}{
			"patient": refs.patient, "visit_date": "2024-02-11", "visit_time": value,
		})
		if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), `"visit_time":["Enter a valid time."]`) {
			t.Fatalf("visit time %q should be rejected: %v", value, err)
		}
	}

	var visits []map[string]interface{}
	if err := user.list(clinic+"/visits", &visits); err != nil {
		t.Fatal(err)
	}
	if len(visits) != 1 || visits[0]["visit_time"] != "10:30:00" {
		t.Fatalf("rejected visits should not be stored: %v", visits)
	}

	_, err = user.create(clinic+"/positions", map[string]interface{}{"title": "Nurse", "salary": -1})
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "salary") {
		t.Fatalf("negative salary should be rejected: %v", err)
	}

	var patient map[string]interface{}
	err = user.detail(clinic+"/patients", refs.patient+100, &patient)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing patient should give not found: %v", err)
	}
}

func TestClinicVisitFull(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}
	refs := createClinicRefs(t, user)

	diagnosis, err := user.create(clinic+"/diagnoses", map[string]interface{}{"name": "Flu", "illness_type": "viral"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := user.create(clinic+"/visitdiagnoses", map[string]interface{}{
		"visit": refs.visit, "diagnosis": diagnosis, "specific_recommendations": "rest",
	}); err != nil {
		t.Fatal(err)
	}

	service, err := user.create(clinic+"/services", map[string]interface{}{"name": "Consultation"})
	if err != nil {
		t.Fatal(err)
	}

	visitService, err := user.create(clinic+"/visitservices", map[string]interface{}{
		"visit": refs.visit, "service": service, "quantity": 2, "price_at_time": 1500,
		"payments": []map[string]interface{}{{"amount": 1000, "payment_date": "2024-02-10"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.create(clinic+"/payments", map[string]interface{}{
		"visit_service": visitService, "amount": 500,
	}); err != nil {
		t.Fatal(err)
	}

	var info services.VisitInfo
	if err := user.Get("/api/clinic/visits/" + itoa(refs.visit) + "/full/").Do(&info); err != nil {
		t.Fatal(err)
	}

	if info.Patient.LastName != "Ivanov" || info.Doctor == nil || info.Doctor.Position == nil || *info.Doctor.Position != "Therapist" {
		t.Fatalf("invalid visit people %+v", info)
	}
	if info.Office == nil || info.Office.OfficeNumber != "101" || info.VisitTime != "10:30" {
		t.Fatalf("invalid visit office %+v", info)
	}
	if len(info.Diagnoses) != 1 || info.Diagnoses[0].Diagnosis.Name != "Flu" {
		t.Fatalf("invalid visit diagnoses %+v", info.Diagnoses)
	}
	if len(info.Services) != 1 || info.Services[0].Service.Name != "Consultation" {
		t.Fatalf("invalid visit services %+v", info.Services)
	}
	if info.Services[0].Total != 3000 || info.Services[0].Paid != 1500 || len(info.Services[0].Payments) != 2 || info.Total != 3000 {
		t.Fatalf("invalid visit totals %+v", info)
	}

	err = user.Get("/api/clinic/visits/1000/full/").Do(&info)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing visit should give not found: %v", err)
	}
}

func TestClinicNestedPayments(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}
	refs := createClinicRefs(t, user)

	service, err := user.create(clinic+"/services", map[string]interface{}{"name": "X-ray"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.create(clinic+"/visitservices", map[string]interface{}{
		"visit": refs.visit, "service": service, "price_at_time": 700,
		"payments": []map[string]interface{}{{"amount": 0}},
	})
	if !errors.Is(err, ErrBadRequest) || !strings.Contains(err.Error(), "payments") {
		t.Fatalf("empty payment should be rejected: %v", err)
	}

	id, err := user.create(clinic+"/visitservices", map[string]interface{}{
		"visit": refs.visit, "service": service, "price_at_time": 700,
		"payments": []map[string]interface{}{{"amount": 200}, {"amount": 300}},
	})
	if err != nil {
		t.Fatal(err)
	}

	type visitService struct {
		Quantity int `json:"quantity"`
		Payments []struct {
			Amount       float64 `json:"amount"`
			VisitService uint    `json:"visit_service"`
		} `json:"payments"`
	}

	var vs visitService
	if err := user.detail(clinic+"/visitservices", id, &vs); err != nil {
		t.Fatal(err)
	}
	if vs.Quantity != 1 || len(vs.Payments) != 2 || vs.Payments[0].VisitService != id {
		t.Fatalf("invalid visit service %+v", vs)
	}

	err = user.Patch(clinic + "/visitservices/" + itoa(id) + "/update/").Json(map[string]interface{}{
		"payments": []map[string]interface{}{{"amount": 700}},
	}).Do(&vs)
	if err != nil {
		t.Fatal(err)
	}
	if len(vs.Payments) != 1 || vs.Payments[0].Amount != 700 {
		t.Fatalf("payments should be replaced %+v", vs)
	}

	var payments []map[string]interface{}
	if err := user.list(clinic+"/payments", &payments); err != nil {
		t.Fatal(err)
	}
	if len(payments) != 1 {
		t.Fatalf("replaced payments should be removed: %v", payments)
	}
}

func TestClinicDeleteBehaviour(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}
	refs := createClinicRefs(t, user)

	if _, err := user.create(clinic+"/medicalcards", map[string]interface{}{
		"patient": refs.patient, "issue_date": "2024-01-01",
	}); err != nil {
		t.Fatal(err)
	}

	// Removing a doctor keeps their visits and offices, without the doctor.
	if err := user.remove(clinic+"/doctors", refs.doctor); err != nil {
		t.Fatal(err)
	}

	var visit map[string]interface{}
	if err := user.detail(clinic+"/visits", refs.visit, &visit); err != nil {
		t.Fatal(err)
	}
	if visit["doctor"] != nil {
		t.Fatalf("visit doctor should be cleared: %v", visit)
	}

	var office map[string]interface{}
	if err := user.detail(clinic+"/offices", refs.office, &office); err != nil {
		t.Fatal(err)
	}
	if office["responsible_doctor"] != nil {
		t.Fatalf("office doctor should be cleared: %v", office)
	}

	if err := user.remove(clinic+"/offices", refs.office); err != nil {
		t.Fatal(err)
	}
	if err := user.detail(clinic+"/visits", refs.visit, &visit); err != nil {
		t.Fatal(err)
	}
	if visit["office"] != nil {
		t.Fatalf("visit office should be cleared: %v", visit)
	}

	diagnosis, err := user.create(clinic+"/diagnoses", map[string]interface{}{"name": "Flu"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := user.create(clinic+"/visitdiagnoses", map[string]interface{}{
		"visit": refs.visit, "diagnosis": diagnosis,
	}); err != nil {
		t.Fatal(err)
	}

	service, err := user.create(clinic+"/services", map[string]interface{}{"name": "Consultation"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := user.create(clinic+"/visitservices", map[string]interface{}{
		"visit": refs.visit, "service": service, "price_at_time": 1500,
		"payments": []map[string]interface{}{{"amount": 1000}, {"amount": 500}},
	}); err != nil {
		t.Fatal(err)
	}

	// Removing a patient removes their cards, visits and everything recorded
	// for those visits.
	if err := user.remove(clinic+"/patients", refs.patient); err != nil {
		t.Fatal(err)
	}

	for _, model := range []interface{}{
		&schema.MedicalCard{}, &schema.Visit{}, &schema.VisitDiagnosis{}, &schema.VisitService{}, &schema.Payment{},
	} {
		var count int64
		if err := env.db.Model(model).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Fatalf("%T rows of deleted patient should be removed, found %d", model, count)
		}
	}

	for _, model := range []interface{}{&schema.Diagnosis{}, &schema.Service{}} {
		var count int64
		if err := env.db.Model(model).Count(&count).Error; err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Fatalf("%T rows should not depend on the patient, found %d", model, count)
		}
	}

	err = user.detail(clinic+"/visits", refs.visit, &visit)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("visit of deleted patient should be removed: %v", err)
	}

	var cards []map[string]interface{}
	if err := user.list(clinic+"/medicalcards", &cards); err != nil {
		t.Fatal(err)
	}
	if len(cards) != 0 {
		t.Fatalf("cards of deleted patient should be removed: %v", cards)
	}

	deleted, err := user.bulkDelete(clinic+"/positions", []uint{refs.position, refs.position + 100})
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted position, got %d", deleted)
	}
}
