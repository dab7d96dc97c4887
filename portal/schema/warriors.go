package schema

var WarriorRaces = []Choice{
	{Value: "j", Label: "junior"},
	{Value: "m", Label: "middle"},
	{Value: "s", Label: "senior"},
}

type Warrior struct {
	Base

	Race         string `gorm:"size:1;not null" json:"race"`
	Name         string `gorm:"size:120;not null" json:"name"`
	Level        int    `gorm:"not null;default:0" json:"level"`
	ProfessionId *uint  `gorm:"index" json:"profession"`

	Profession *Occupation      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Skills     []SkillOfWarrior `gorm:"constraint:OnDelete:CASCADE" json:"skills,omitempty"`
}

type Skill struct {
	Base

	Title string `gorm:"size:120;not null" json:"title"`

	Warriors []SkillOfWarrior `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// SkillOfWarrior is the join row between a warrior and a skill, carrying the
// level the warrior reached in that skill.
type SkillOfWarrior struct {
	Base

	SkillId   uint `gorm:"not null;index" json:"skill"`
	WarriorId uint `gorm:"not null;index" json:"warrior"`
	Level     int  `gorm:"not null" json:"level"`

	Skill   *Skill   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Warrior *Warrior `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Occupation struct {
	Base

	Title       string `gorm:"size:120;not null" json:"title"`
	Description string `gorm:"not null" json:"description"`

	Warriors []Warrior `gorm:"foreignKey:ProfessionId;constraint:OnDelete:CASCADE" json:"-"`
}
