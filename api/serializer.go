package api

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 256 * 1024

// JSONSerializer is the echo serializer backed by sonic.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

// Deserialize decodes a bounded request body. Malformed JSON is a client
// input error and is reported as 422.
func (JSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	if err := dec.Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Validation error").SetInternal(err)
	}
	return nil
}

func decodeBody(c echo.Context, v interface{}) error {
	return c.Echo().JSONSerializer.Deserialize(c, v)
}
