package serverutils

import (
	"errors"
	"fmt"

	"food-search-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns handler panics into a 500 JSON response.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("HTTP", "Recovered from panic", map[string]interface{}{
					"path":  ctx.Path(),
					"panic": fmt.Sprint(r),
				})
				err = ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(500, "Internal server error"))
			}
		}()
		return ctx.Next()
	}
}

// ErrorHandler is the fiber.Config error handler: every unhandled error gets
// the same JSON envelope.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return ctx.Status(code).JSON(ErrorResponse(code, err.Error()))
}
