package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const maxDescriptionLength = 2000

// Task is stored nested under its owning company.
type Task struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"companyId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Validate requires a company reference and a title.
func (t Task) Validate() error {
	if err := checkRules([]fieldRule{
		{"Company ID", t.CompanyID, 200},
		{"Task title", t.Title, 500},
	}); err != nil {
		return err
	}
	return checkDescription(t.Description)
}

func checkDescription(d string) error {
	if utf8.RuneCountInString(d) > maxDescriptionLength {
		return E(KindValidation, "Description is too long")
	}
	return nil
}

// TaskTemplate is a write-only instruction expanded into one Task per company.
type TaskTemplate struct {
	CompanyIDs  []string `json:"companyIds"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Completed   bool     `json:"completed"`
}

// Validate requires a title and at least one company id.
func (t TaskTemplate) Validate() error {
	if err := checkRules([]fieldRule{{"Template title", t.Title, 500}}); err != nil {
		return err
	}
	if len(t.CompanyIDs) == 0 {
		return E(KindValidation, "Company IDs are required and cannot be empty")
	}
	for _, id := range t.CompanyIDs {
		if strings.TrimSpace(id) == "" {
			return E(KindValidation, "Company IDs cannot contain empty values")
		}
	}
	return checkDescription(t.Description)
}

// NewTask expands the template for one company.
func (t TaskTemplate) NewTask(id, companyID string, now time.Time) Task {
	return Task{
		ID:          id,
		CompanyID:   companyID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}
}

// AssignData is accepted and echoed back; it is not persisted.
type AssignData struct {
	CompanyIDs []string `json:"companyIds"`
	StartDate  string   `json:"startDate"`
	DueDate    string   `json:"dueDate"`
}
