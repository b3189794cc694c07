package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"company-tasks-api/domain"
)

func getAllTasks(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		tasks, err := deps.Lister.ListAllTasks(c.Request().Context(), userID(c))
		observeRemote(c, start)
		if err != nil {
			return remoteError(err)
		}
		metricsFrom(c).SetItems(len(tasks))
		return c.JSON(http.StatusOK, tasks)
	}
}

func getTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		task, err := deps.Store.FindTask(c.Request().Context(), userID(c), c.Param("id"))
		observeRemote(c, start)
		if err != nil {
			return remoteError(err)
		}
		if task == nil {
			return notExist(c, msgNotExist)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func createTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var task domain.Task
		if err := decodeBody(c, &task); err != nil {
			return err
		}
		if err := task.Validate(); err != nil {
			return remoteError(err)
		}

		ctx := c.Request().Context()
		uid := userID(c)
		start := time.Now()
		defer observeRemote(c, start)

		company, err := deps.Store.GetCompany(ctx, uid, task.CompanyID)
		if err != nil {
			return remoteError(err)
		}
		if company == nil {
			return notExist(c, msgCompanyNotExist)
		}

		now := deps.Now().UTC()
		task.ID = deps.NewID()
		task.CreatedAt = &now
		task.UpdatedAt = &now
		if err := deps.Store.UpsertTask(ctx, uid, task); err != nil {
			return remoteError(err)
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Data created successfully", ID: task.ID})
	}
}

// updateTask replaces the task in place. When the company changes the task
// is written under the new company and the old document is removed; a failed
// removal is logged and leaves a stale copy behind.
func updateTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var task domain.Task
		if err := decodeBody(c, &task); err != nil {
			return err
		}
		if err := task.Validate(); err != nil {
			return remoteError(err)
		}

		ctx := c.Request().Context()
		uid, id := userID(c), c.Param("id")
		start := time.Now()
		defer observeRemote(c, start)

		company, err := deps.Store.GetCompany(ctx, uid, task.CompanyID)
		if err != nil {
			return remoteError(err)
		}
		if company == nil {
			return notExist(c, msgCompanyNotExist)
		}
		existing, err := deps.Store.FindTask(ctx, uid, id)
		if err != nil {
			return remoteError(err)
		}
		if existing == nil {
			return notExist(c, msgNotExist)
		}

		now := deps.Now().UTC()
		task.ID = id
		task.CreatedAt = existing.CreatedAt
		task.UpdatedAt = &now
		if err := deps.Store.UpsertTask(ctx, uid, task); err != nil {
			return remoteError(err)
		}
		if existing.CompanyID != "" && existing.CompanyID != task.CompanyID {
			if err := deps.Store.DeleteTask(ctx, uid, existing.CompanyID, id); err != nil {
				deps.Logger.WithFields(log.Fields{
					"user_id":    uid,
					"task_id":    id,
					"company_id": existing.CompanyID,
					"error":      err.Error(),
				}).Warn("stale task copy not removed")
			}
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Data updated successfully", ID: id})
	}
}

func deleteTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		uid, id := userID(c), c.Param("id")
		start := time.Now()
		defer observeRemote(c, start)

		existing, err := deps.Store.FindTask(ctx, uid, id)
		if err != nil {
			return remoteError(err)
		}
		if existing == nil {
			return notExist(c, msgNotExist)
		}
		if err := deps.Store.DeleteTask(ctx, uid, existing.CompanyID, id); err != nil {
			return remoteError(err)
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Task deleted successfully", ID: id})
	}
}
