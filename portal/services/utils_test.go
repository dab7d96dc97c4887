package services

import (
	"errors"
	"testing"

	"coursework/portal/access"
	"coursework/portal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeRedirect(t *testing.T) {
	assert.Equal(t, "/race/1/", safeRedirect("/race/1/", "/"))
	assert.Equal(t, "/comment/add/?race=2", safeRedirect("/comment/add/?race=2", "/"))
	assert.Equal(t, "/", safeRedirect("", "/"))
	assert.Equal(t, "/", safeRedirect("//evil.example.com/", "/"))
	assert.Equal(t, "/", safeRedirect("/\\evil.example.com/", "/"))
	assert.Equal(t, "/", safeRedirect("https://evil.example.com/", "/"))
}

func TestValidateSignup(t *testing.T) {
	assert.NoError(t, validateSignup("abc", "abc@mail.com", "abc_password"))

	err := validateSignup("", "abc", "short")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInvalidSignup))

	verr, ok := access.AsValidationError(err)
	require.True(t, ok)
	assert.NotEmpty(t, verr.For("username"))
	assert.Equal(t, []string{"Enter a valid email address."}, verr.For("email"))
	assert.NotEmpty(t, verr.For("password"))
}

func TestWarriorPresenters(t *testing.T) {
	profession := uint(3)
	warrior := schema.Warrior{
		Base: schema.Base{Id: 1}, Race: "m", Name: "Boromir", Level: 4, ProfessionId: &profession,
		Profession: &schema.Occupation{Base: schema.Base{Id: 3}, Title: "Captain", Description: "Leads the guard"},
		Skills: []schema.SkillOfWarrior{
			{SkillId: 7, Level: 2, Skill: &schema.Skill{Base: schema.Base{Id: 7}, Title: "Swordplay"}},
		},
	}

	plain := presentWarrior(warrior).(WarriorInfo)
	assert.Equal(t, &profession, plain.Profession)
	assert.Equal(t, []uint{7}, plain.Skill)

	assert.Equal(t, "Captain", presentWarriorWithOccupation(warrior).(WarriorInfo).Profession)
	assert.Equal(t, []string{"Swordplay"}, presentWarriorWithSkillTitles(warrior).(WarriorInfo).Skill)

	nested := presentWarriorNested(warrior).(WarriorInfo)
	assert.Equal(t, "middle", nested.Race)
	assert.Equal(t, warrior.Profession, nested.Profession)
	assert.Len(t, nested.Skill, 1)

	warrior.Profession = nil
	assert.Nil(t, presentWarriorWithOccupation(warrior).(WarriorInfo).Profession)
}

func TestVisitTotals(t *testing.T) {
	visit := schema.Visit{
		Base:      schema.Base{Id: 1},
		Patient:   &schema.Patient{Base: schema.Base{Id: 2}, LastName: "Ivanov"},
		VisitTime: schema.NewTime(10, 30),
		Services: []schema.VisitService{
			{Quantity: 2, PriceAtTime: 150, Payments: []schema.Payment{{Amount: 100}, {Amount: 50}}},
			{Quantity: 1, PriceAtTime: 400},
		},
	}

	info := convertToVisitInfo(visit)
	assert.Equal(t, "10:30", info.VisitTime)
	assert.Equal(t, "Ivanov", info.Patient.LastName)
	assert.Nil(t, info.Doctor)
	require.Len(t, info.Services, 2)
	assert.Equal(t, 300.0, info.Services[0].Total)
	assert.Equal(t, 150.0, info.Services[0].Paid)
	assert.NotNil(t, info.Services[1].Payments)
	assert.Equal(t, 700.0, info.Total)
}
