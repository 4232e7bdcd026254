package handler // declare the package name; contains HTTP handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health reports that the process is up.  It does not touch the database;
// use /ping for that.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
