package server

import (
	"errors"
	"strings"

	"trashtalk/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// errResponseWritten means a helper already committed the response.
// Handlers return nil when they see it.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const maxPaginationLimit = 100

var validate = validator.New()

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{Limit: limit, Offset: offset}
}

// parseID extracts a route parameter as a positive uint, writing a 400 on failure.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, models.NewInvalidArgumentError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam turns "id" into "ID" and "userId" into "user ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if prefix, ok := strings.CutSuffix(param, "Id"); ok {
		return strings.ToLower(prefix) + " ID"
	}
	return param
}

// parseBody decodes and validates the JSON body into dst, writing a 400 on failure.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		_ = models.RespondWithError(c, models.NewInvalidArgumentError("Invalid request body"))
		return errResponseWritten
	}
	if err := validate.Struct(dst); err != nil {
		_ = models.RespondWithError(c, models.NewInvalidArgumentError(validationMessage(err)))
		return errResponseWritten
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fe.Field() + " failed " + fe.Tag() + " validation"
	}
	return "Invalid request body"
}

// userIDFrom returns the authenticated caller. AuthRequired guarantees it is set.
func userIDFrom(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}
