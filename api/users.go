package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"company-tasks-api/domain"
	"company-tasks-api/identity"
)

func createUser(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var creds domain.Credentials
		if err := decodeBody(c, &creds); err != nil {
			return err
		}
		if err := creds.Validate(); err != nil {
			return remoteError(err)
		}
		session, err := deps.Accounts.SignUp(c.Request().Context(), creds)
		if err != nil {
			return remoteError(err, createUserRules)
		}
		return c.JSON(http.StatusOK, session)
	}
}

func loginUser(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var creds domain.Credentials
		if err := decodeBody(c, &creds); err != nil {
			return err
		}
		if err := creds.Validate(); err != nil {
			return remoteError(err)
		}
		session, err := deps.Accounts.SignIn(c.Request().Context(), creds)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials").SetInternal(err)
			}
			return remoteError(err)
		}
		return c.JSON(http.StatusOK, session)
	}
}
