package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trackmyacademy/dashboard/core/academy"
)

// bindTableQuery reads the `q`, `sort` and `dir` query params of an academy table.
func bindTableQuery(ctx echo.Context) academy.TableQuery {
	return academy.ParseTableQuery(ctx.QueryParams())
}
