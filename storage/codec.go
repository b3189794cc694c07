package storage

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"company-tasks-api/domain"
)

// value is one typed field of a remote document. Only the tags this service
// writes are modelled; anything else decodes to the zero value.
type value struct {
	StringValue    *string `json:"stringValue,omitempty"`
	BooleanValue   *bool   `json:"booleanValue,omitempty"`
	TimestampValue *string `json:"timestampValue,omitempty"`
}

type document struct {
	Name       string           `json:"name,omitempty"`
	Fields     map[string]value `json:"fields"`
	CreateTime string           `json:"createTime,omitempty"`
	UpdateTime string           `json:"updateTime,omitempty"`
}

// listResponse keeps documents raw so each one is decoded on its own and a
// malformed entry cannot fail the page.
type listResponse struct {
	Documents     []sonic.NoCopyRawMessage `json:"documents"`
	NextPageToken string                   `json:"nextPageToken,omitempty"`
}

func stringField(s string) value {
	return value{StringValue: &s}
}

func boolField(b bool) value {
	return value{BooleanValue: &b}
}

func timeField(t time.Time) value {
	s := t.UTC().Format(time.RFC3339Nano)
	return value{TimestampValue: &s}
}

func getString(fields map[string]value, name string) string {
	if v, ok := fields[name]; ok && v.StringValue != nil {
		return *v.StringValue
	}
	return ""
}

func getBool(fields map[string]value, name string) bool {
	if v, ok := fields[name]; ok && v.BooleanValue != nil {
		return *v.BooleanValue
	}
	return false
}

func getTime(fields map[string]value, name string) *time.Time {
	v, ok := fields[name]
	if !ok || v.TimestampValue == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue)
	if err != nil {
		return nil
	}
	return &t
}

// documentID returns the last segment of a resource name.
func documentID(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func wellFormed(doc document) bool {
	return doc.Name != "" && doc.Fields != nil && documentID(doc.Name) != ""
}

func setTimes(fields map[string]value, created, updated *time.Time) {
	if created != nil {
		fields["created_at"] = timeField(*created)
	}
	if updated != nil {
		fields["updated_at"] = timeField(*updated)
	}
}

func encodeCompany(c domain.Company) map[string]value {
	fields := map[string]value{
		"name":                  stringField(c.Name),
		"EIN":                   stringField(c.EIN),
		"startDate":             stringField(c.StartDate),
		"stateIncorporated":     stringField(c.StateIncorporated),
		"contactPersonName":     stringField(c.ContactPersonName),
		"contactPersonPhNumber": stringField(c.ContactPersonPhNumber),
		"address1":              stringField(c.Address1),
		"address2":              stringField(c.Address2),
		"city":                  stringField(c.City),
		"state":                 stringField(c.State),
		"zip":                   stringField(c.Zip),
	}
	setTimes(fields, c.CreatedAt, c.UpdatedAt)
	return fields
}

func decodeCompany(doc document) (domain.Company, bool) {
	if !wellFormed(doc) {
		return domain.Company{}, false
	}
	f := doc.Fields
	return domain.Company{
		ID:                    documentID(doc.Name),
		Name:                  getString(f, "name"),
		EIN:                   getString(f, "EIN"),
		StartDate:             getString(f, "startDate"),
		StateIncorporated:     getString(f, "stateIncorporated"),
		ContactPersonName:     getString(f, "contactPersonName"),
		ContactPersonPhNumber: getString(f, "contactPersonPhNumber"),
		Address1:              getString(f, "address1"),
		Address2:              getString(f, "address2"),
		City:                  getString(f, "city"),
		State:                 getString(f, "state"),
		Zip:                   getString(f, "zip"),
		CreatedAt:             getTime(f, "created_at"),
		UpdatedAt:             getTime(f, "updated_at"),
	}, true
}

func encodeTask(t domain.Task) map[string]value {
	fields := map[string]value{
		"company_id":  stringField(t.CompanyID),
		"title":       stringField(t.Title),
		"description": stringField(t.Description),
		"completed":   boolField(t.Completed),
	}
	setTimes(fields, t.CreatedAt, t.UpdatedAt)
	return fields
}

func decodeTask(doc document) (domain.Task, bool) {
	if !wellFormed(doc) {
		return domain.Task{}, false
	}
	f := doc.Fields
	return domain.Task{
		ID:          documentID(doc.Name),
		CompanyID:   getString(f, "company_id"),
		Title:       getString(f, "title"),
		Description: getString(f, "description"),
		Completed:   getBool(f, "completed"),
		CreatedAt:   getTime(f, "created_at"),
		UpdatedAt:   getTime(f, "updated_at"),
	}, true
}

func encodeUserRecord(email string, createdAt time.Time) map[string]value {
	return map[string]value{
		"email":      stringField(email),
		"created_at": timeField(createdAt),
	}
}
