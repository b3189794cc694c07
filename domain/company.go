package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Company is owned by exactly one user and stored under that user's namespace.
type Company struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	EIN                   string     `json:"EIN"`
	StartDate             string     `json:"startDate"`
	StateIncorporated     string     `json:"stateIncorporated"`
	ContactPersonName     string     `json:"contactPersonName"`
	ContactPersonPhNumber string     `json:"contactPersonPhNumber"`
	Address1              string     `json:"address1"`
	Address2              string     `json:"address2"`
	City                  string     `json:"city"`
	State                 string     `json:"state"`
	Zip                   string     `json:"zip"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

type fieldRule struct {
	label string
	value string
	max   int
}

func (c Company) rules() []fieldRule {
	return []fieldRule{
		{"Company name", c.Name, 500},
		{"EIN", c.EIN, 50},
		{"Start date", c.StartDate, 50},
		{"State incorporated", c.StateIncorporated, 50},
		{"Contact person name", c.ContactPersonName, 200},
		{"Contact person phone number", c.ContactPersonPhNumber, 50},
		{"Address1", c.Address1, 500},
		{"Address2", c.Address2, 500},
		{"City", c.City, 200},
		{"State", c.State, 50},
		{"Zip", c.Zip, 20},
	}
}

// Validate checks that every field is present and within its length limit.
func (c Company) Validate() error {
	return checkRules(c.rules())
}

func checkRules(rules []fieldRule) error {
	for _, r := range rules {
		if strings.TrimSpace(r.value) == "" {
			return E(KindValidation, r.label+" is required and cannot be empty")
		}
		if r.max > 0 && utf8.RuneCountInString(r.value) > r.max {
			return E(KindValidation, r.label+" is too long")
		}
	}
	return nil
}
