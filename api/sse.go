package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// getStream serves the live event feed over SSE. The subscription's topic
// set follows the actor's role; when the hub evicts a slow connection the
// channel closes and the client is expected to reconnect and re-fetch.
func getStream(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := actorFromRequest(c)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")

		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		sub := d.Streamer.Subscribe(actor)
		defer sub.Close()

		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, open := <-sub.C():
				if !open {
					return nil
				}
				payload, err := sonic.Marshal(ev)
				if err != nil {
					c.Logger().Error(err)
					continue
				}
				if _, err := c.Response().Write([]byte("event: " + ev.Type + "\ndata: ")); err != nil {
					return err
				}
				if _, err := c.Response().Write(payload); err != nil {
					return err
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return err
				}
				flusher.Flush()
			}
		}
	}
}
