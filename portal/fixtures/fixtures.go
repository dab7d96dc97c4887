package fixtures

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"coursework/portal/schema"
	"coursework/utils/logging"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// The default seed is bundled into the binary so a fresh install can be
// populated without shipping extra files.
//
//go:embed seed.yaml
var defaultSeed []byte

type Race struct {
	Name   string `yaml:"name"`
	Date   string `yaml:"date"`
	Time   string `yaml:"time"`
	Result string `yaml:"result"`
}

type Occupation struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Skill struct {
	Title string `yaml:"title"`
}

type Position struct {
	Title    string  `yaml:"title"`
	Category *string `yaml:"category"`
	Salary   float64 `yaml:"salary"`
}

type Diagnosis struct {
	Name        string  `yaml:"name"`
	IllnessType *string `yaml:"illness_type"`
	Description *string `yaml:"description"`
}

type Service struct {
	Name        string  `yaml:"name"`
	Description *string `yaml:"description"`
	ServiceType *string `yaml:"service_type"`
}

type Car struct {
	LicensePlate string  `yaml:"license_plate"`
	Brand        string  `yaml:"brand"`
	Model        string  `yaml:"model"`
	Color        *string `yaml:"color"`
}

// Fixtures are reference rows loaded at startup.
type Fixtures struct {
	Races       []Race       `yaml:"races"`
	Occupations []Occupation `yaml:"occupations"`
	Skills      []Skill      `yaml:"skills"`
	Positions   []Position   `yaml:"positions"`
	Diagnoses   []Diagnosis  `yaml:"diagnoses"`
	Services    []Service    `yaml:"services"`
	Cars        []Car        `yaml:"cars"`
}

func Parse(data []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixtures{}, fmt.Errorf("error parsing fixtures: %w", err)
	}
	return f, nil
}

// Load reads fixtures from path, or the bundled seed if path is empty.
func Load(path string) (Fixtures, error) {
	if path == "" {
		return Parse(defaultSeed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("error reading fixtures file '%v': %w", path, err)
	}
	return Parse(data)
}

func (r Race) toSchema() (schema.Race, error) {
	race := schema.NewRace()
	race.Name = r.Name

	date, err := schema.ParseDate(r.Date)
	if err != nil {
		return race, fmt.Errorf("race '%v': %w", r.Name, err)
	}
	race.Date = date

	if r.Time != "" {
		t, err := schema.ParseTime(r.Time)
		if err != nil {
			return race, fmt.Errorf("race '%v': %w", r.Name, err)
		}
		race.Time = t
	}
	if r.Result != "" {
		race.Result = r.Result
	}
	return race, nil
}

// seed inserts row unless a row matching key already exists.
func seed(txn *gorm.DB, row interface{}, key map[string]interface{}) (bool, error) {
	var count int64
	if result := txn.Model(row).Where(key).Count(&count); result.Error != nil {
		return false, result.Error
	}
	if count > 0 {
		return false, nil
	}
	if result := txn.Create(row); result.Error != nil {
		return false, result.Error
	}
	return true, nil
}

// Apply inserts every fixture that is not present yet, so applying the same
// fixtures again is a no-op. Returns the number of inserted rows.
func Apply(db *gorm.DB, f Fixtures) (int, error) {
	inserted := 0
	add := func(created bool, err error) error {
		if created {
			inserted++
		}
		return err
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		for _, r := range f.Races {
			race, err := r.toSchema()
			if err != nil {
				return err
			}
			if err := add(seed(txn, &race, map[string]interface{}{"name": race.Name, "date": race.Date})); err != nil {
				return fmt.Errorf("error seeding race '%v': %w", race.Name, err)
			}
		}

		for _, o := range f.Occupations {
			row := schema.Occupation{Title: o.Title, Description: o.Description}
			if err := add(seed(txn, &row, map[string]interface{}{"title": o.Title})); err != nil {
				return fmt.Errorf("error seeding occupation '%v': %w", o.Title, err)
			}
		}

		for _, s := range f.Skills {
			row := schema.Skill{Title: s.Title}
			if err := add(seed(txn, &row, map[string]interface{}{"title": s.Title})); err != nil {
				return fmt.Errorf("error seeding skill '%v': %w", s.Title, err)
			}
		}

		for _, p := range f.Positions {
			row := schema.Position{Title: p.Title, Category: p.Category, Salary: p.Salary}
			if err := add(seed(txn, &row, map[string]interface{}{"title": p.Title})); err != nil {
				return fmt.Errorf("error seeding position '%v': %w", p.Title, err)
			}
		}

		for _, d := range f.Diagnoses {
			row := schema.Diagnosis{Name: d.Name, IllnessType: d.IllnessType, Description: d.Description}
			if err := add(seed(txn, &row, map[string]interface{}{"name": d.Name})); err != nil {
				return fmt.Errorf("error seeding diagnosis '%v': %w", d.Name, err)
			}
		}

		for _, s := range f.Services {
			row := schema.Service{Name: s.Name, Description: s.Description, ServiceType: s.ServiceType}
			if err := add(seed(txn, &row, map[string]interface{}{"name": s.Name})); err != nil {
				return fmt.Errorf("error seeding service '%v': %w", s.Name, err)
			}
		}

		for _, c := range f.Cars {
			row := schema.Car{LicensePlate: c.LicensePlate, Brand: c.Brand, Model: c.Model, Color: c.Color}
			if err := add(seed(txn, &row, map[string]interface{}{"license_plate": c.LicensePlate})); err != nil {
				return fmt.Errorf("error seeding car '%v': %w", c.LicensePlate, err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("applied fixtures", "inserted", inserted, logging.Code(logging.DATA_FIXTURES))
	return inserted, nil
}
