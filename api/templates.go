package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"company-tasks-api/domain"
)

const (
	assignmentCreated = "created"
	assignmentFailed  = "failed"
)

type createdTask struct {
	TaskID    string `json:"task_id"`
	CompanyID string `json:"company_id"`
	Status    string `json:"status"`
}

type templateResponse struct {
	Message               string        `json:"message"`
	CreatedTasks          []createdTask `json:"created_tasks"`
	TotalCompanies        int           `json:"total_companies"`
	SuccessfulAssignments int           `json:"successful_assignments"`
	NotAvailableCompanies []string      `json:"not_available_companies,omitempty"`
}

type assignResponse struct {
	Message    string   `json:"message"`
	TemplateID string   `json:"templateId"`
	CompanyIDs []string `json:"companyIds"`
	StartDate  string   `json:"startDate"`
	DueDate    string   `json:"dueDate"`
	AssignedAt string   `json:"assigned_at"`
}

// Templates are never persisted.
func getAllTemplates() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, []domain.TaskTemplate{})
	}
}

// createTemplate expands the template into one task per listed company the
// user owns. Unknown companies are reported, not rejected; a failed write is
// reported per entry and does not abort the rest.
func createTemplate(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var tmpl domain.TaskTemplate
		if err := decodeBody(c, &tmpl); err != nil {
			return err
		}
		if err := tmpl.Validate(); err != nil {
			return remoteError(err)
		}

		ctx := c.Request().Context()
		uid := userID(c)
		start := time.Now()
		defer observeRemote(c, start)

		companies, err := deps.Store.ListCompanies(ctx, uid)
		if err != nil {
			return remoteError(err)
		}
		owned := make(map[string]struct{}, len(companies))
		for _, company := range companies {
			owned[company.ID] = struct{}{}
		}

		resp := templateResponse{
			Message:        "Tasks created and assigned to companies",
			CreatedTasks:   make([]createdTask, 0, len(tmpl.CompanyIDs)),
			TotalCompanies: len(tmpl.CompanyIDs),
		}
		now := deps.Now().UTC()
		for _, companyID := range tmpl.CompanyIDs {
			if _, ok := owned[companyID]; !ok {
				resp.NotAvailableCompanies = append(resp.NotAvailableCompanies, companyID)
				continue
			}
			task := tmpl.NewTask(deps.NewID(), companyID, now)
			entry := createdTask{TaskID: task.ID, CompanyID: companyID, Status: assignmentCreated}
			if err := deps.Store.UpsertTask(ctx, uid, task); err != nil {
				entry.Status = assignmentFailed
				deps.Logger.WithFields(log.Fields{
					"user_id":    uid,
					"company_id": companyID,
					"error":      err.Error(),
				}).Warn("template task write failed")
			} else {
				resp.SuccessfulAssignments++
			}
			resp.CreatedTasks = append(resp.CreatedTasks, entry)
		}
		metricsFrom(c).SetItems(resp.SuccessfulAssignments)
		return c.JSON(http.StatusOK, resp)
	}
}

func deleteTemplate() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, messageResponse{Message: "Template deleted successfully", ID: c.Param("id")})
	}
}

func assignTemplate(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var data domain.AssignData
		if err := decodeBody(c, &data); err != nil {
			return err
		}
		if data.CompanyIDs == nil {
			data.CompanyIDs = []string{}
		}
		return c.JSON(http.StatusOK, assignResponse{
			Message:    "Template assigned successfully",
			TemplateID: c.Param("id"),
			CompanyIDs: data.CompanyIDs,
			StartDate:  data.StartDate,
			DueDate:    data.DueDate,
			AssignedAt: deps.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}
