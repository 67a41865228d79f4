package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"
)

// getAccountQR renders the account number as a PNG QR code so the POS
// tablet can pull up an account by scanning a printed card.
func getAccountQR(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		account, err := d.Directory.AccountByID(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		png, err := qrcode.Encode(account.Number, qrcode.Medium, 256)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to generate QR code")
		}
		c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
		return c.Blob(http.StatusOK, "image/png", png)
	}
}
