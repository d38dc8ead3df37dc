package api

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) statsdMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		duration := time.Since(start)

		tags := []string{"path:" + c.Path(), "method:" + c.Request().Method}
		_ = s.sdClient.Incr("dca.http.requests", tags[:1], 1)
		_ = s.sdClient.Timing("dca.http.response_time", duration, tags[:1], 1)
		_ = s.sdClient.Incr("dca.http.status."+fmt.Sprint(c.Response().Status), tags, 1)

		return err
	}
}
