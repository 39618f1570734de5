package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSMiddleware configures and returns CORS middleware. Credentials are
// only allowed with an explicit origin list.
func CORSMiddleware(allowedOrigins []string) fiber.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	wildcard := slices.Contains(allowedOrigins, "*")
	origins := strings.Join(allowedOrigins, ",")
	if wildcard {
		origins = "*"
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,DELETE",
		AllowHeaders:     "Content-Type,Authorization," + TraceIDHeader,
		AllowCredentials: !wildcard,
	})
}
