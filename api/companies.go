package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"company-tasks-api/domain"
)

func getAllCompanies(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		companies, err := deps.Lister.ListCompanies(c.Request().Context(), userID(c))
		observeRemote(c, start)
		if err != nil {
			return remoteError(err)
		}
		metricsFrom(c).SetItems(len(companies))
		return c.JSON(http.StatusOK, companies)
	}
}

func getCompany(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		company, err := deps.Store.GetCompany(c.Request().Context(), userID(c), c.Param("id"))
		observeRemote(c, start)
		if err != nil {
			return remoteError(err)
		}
		if company == nil {
			return notExist(c, msgNotExist)
		}
		return c.JSON(http.StatusOK, company)
	}
}

func createCompany(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var company domain.Company
		if err := decodeBody(c, &company); err != nil {
			return err
		}
		if err := company.Validate(); err != nil {
			return remoteError(err)
		}

		now := deps.Now().UTC()
		company.ID = deps.NewID()
		company.CreatedAt = &now
		company.UpdatedAt = &now

		start := time.Now()
		err := deps.Store.UpsertCompany(c.Request().Context(), userID(c), company)
		observeRemote(c, start)
		if err != nil {
			return remoteError(err)
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Data created successfully", ID: company.ID})
	}
}

func updateCompany(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var company domain.Company
		if err := decodeBody(c, &company); err != nil {
			return err
		}
		if err := company.Validate(); err != nil {
			return remoteError(err)
		}

		ctx := c.Request().Context()
		uid, id := userID(c), c.Param("id")
		start := time.Now()
		defer observeRemote(c, start)

		existing, err := deps.Store.GetCompany(ctx, uid, id)
		if err != nil {
			return remoteError(err)
		}
		if existing == nil {
			return notExist(c, msgNotExist)
		}

		now := deps.Now().UTC()
		company.ID = id
		company.CreatedAt = existing.CreatedAt
		company.UpdatedAt = &now
		if err := deps.Store.UpsertCompany(ctx, uid, company); err != nil {
			return remoteError(err)
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Data updated successfully", ID: id})
	}
}

func deleteCompany(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		uid, id := userID(c), c.Param("id")
		start := time.Now()
		defer observeRemote(c, start)

		existing, err := deps.Store.GetCompany(ctx, uid, id)
		if err != nil {
			return remoteError(err, deleteCompanyRules)
		}
		if existing == nil {
			return notExist(c, msgNotExist)
		}
		if err := deps.Store.DeleteCompany(ctx, uid, id); err != nil {
			return remoteError(err, deleteCompanyRules)
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Company deleted successfully", ID: id})
	}
}
