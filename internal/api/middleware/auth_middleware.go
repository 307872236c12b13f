package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/maheshrc27/postqueue/pkg/utils"
	"github.com/rs/zerolog"
)

// ActorKey is the fiber local holding the authenticated operator.
const ActorKey = "actor"

type AuthMiddleware struct {
	s          service.ApiKeyService
	secretKey  string
	cookieName string
	log        zerolog.Logger
}

func NewAuthMiddleware(secretKey, cookieName string, service service.ApiKeyService, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		s:          service,
		secretKey:  secretKey,
		cookieName: cookieName,
		log:        log.With().Str("comp", "auth").Logger(),
	}
}

// AuthMiddleware accepts a JWT from the Authorization header or the session
// cookie, or an operator key in the api_key query parameter.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		fromCookie := false
		if tokenString == "" {
			tokenString = c.Cookies(m.cookieName)
			fromCookie = tokenString != ""
		}
		apiKey := c.Query("api_key")

		if tokenString == "" && apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token or api key",
			})
		}

		if tokenString != "" {
			claims, err := utils.ValidateToken(m.secretKey, tokenString)
			if err != nil {
				if fromCookie {
					c.Cookie(&fiber.Cookie{
						Name:   m.cookieName,
						Value:  "",
						Path:   "/",
						MaxAge: -1,
					})
				}
				m.log.Debug().Err(err).Str("ip", c.IP()).Msg("token validation failed")
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired token",
				})
			}
			c.Locals(ActorKey, claims.Actor)
			return c.Next()
		}

		actor, err := m.s.GetActor(c.Context(), apiKey)
		if err != nil {
			m.log.Debug().Err(err).Str("ip", c.IP()).Msg("api key rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid api key",
			})
		}
		c.Locals(ActorKey, actor)
		return c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
