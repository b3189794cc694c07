package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	msgNotExist        = "That data not exist"
	msgCompanyNotExist = "Company not exist"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) {
	deps = deps.withDefaults()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps)
	e.JSONSerializer = JSONSerializer{}
	e.Use(RequestMetrics(deps.Logger), ContentTypeGate())

	e.GET("/healthz", healthz())
	e.POST("/create_user", createUser(deps))
	e.POST("/login_user", loginUser(deps))

	protected := []echo.MiddlewareFunc{
		RequireAuth(deps.Auth, deps.Logger),
		PathGuard(),
		RateLimit(deps.Limiter, deps.Logger),
	}

	e.GET("/getall_companies", getAllCompanies(deps), protected...)
	e.GET("/get_company/:id", getCompany(deps), protected...)
	e.POST("/create_company", createCompany(deps), protected...)
	e.PUT("/update_company/:id", updateCompany(deps), protected...)
	e.DELETE("/delete_company/:id", deleteCompany(deps), protected...)

	e.GET("/getall_tasks", getAllTasks(deps), protected...)
	e.GET("/get_task/:id", getTask(deps), protected...)
	e.POST("/create_task", createTask(deps), protected...)
	e.PUT("/update_task/:id", updateTask(deps), protected...)
	e.DELETE("/delete_task/:id", deleteTask(deps), protected...)

	e.GET("/getall_templates", getAllTemplates(), protected...)
	e.POST("/create_template", createTemplate(deps), protected...)
	e.DELETE("/delete_template/:id", deleteTemplate(), protected...)
	e.POST("/assign_template/:id", assignTemplate(deps), protected...)
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

func observeRemote(c echo.Context, start time.Time) {
	metricsFrom(c).ObserveRemote(time.Since(start))
}

func notExist(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, messageResponse{Message: message})
}
