// this file sets up the HTTP surface - the websocket endpoint and health
package main

import (
	"net/http"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
)

func NewHTTPRouter(hub *Hub) *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}\n",
	}))

	api := r.Group("/api")
	api.GET("/health", healthCheckHandler)

	r.GET("/ws", func(c echo.Context) error {
		hub.ServeWS(c.Response(), c.Request())
		return nil
	})

	return r
}

func healthCheckHandler(c echo.Context) error {
	return c.String(http.StatusOK, "I am up and running!")
}
