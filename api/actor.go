package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

// Actor identity arrives on headers set by the kiosk shell in front of
// this service. There is no session handling here.
const (
	HeaderActorID        = "X-Actor-Id"
	HeaderActorRole      = "X-Actor-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

func actorFromRequest(c echo.Context) (domain.Actor, error) {
	actor := domain.Actor{
		ID:   strings.TrimSpace(c.Request().Header.Get(HeaderActorID)),
		Role: strings.TrimSpace(c.Request().Header.Get(HeaderActorRole)),
	}
	if err := actor.Validate(); err != nil {
		return domain.Actor{}, err
	}
	return actor, nil
}
