package auth

import "github.com/gofiber/fiber/v2"

const sessionKey = "session"

// Session identifies the caller of a request. It is set by JWTMiddleware and
// passed explicitly to whatever needs the current user.
type Session struct {
	UserID    string `json:"user_id"`
	Anonymous bool   `json:"is_anonymous"`
}

func SessionFrom(c *fiber.Ctx) (Session, bool) {
	sess, ok := c.Locals(sessionKey).(Session)
	if !ok || sess.UserID == "" {
		return Session{}, false
	}
	return sess, true
}

// MustSession is SessionFrom for handlers mounted behind JWTMiddleware.
func MustSession(c *fiber.Ctx) (Session, error) {
	sess, ok := SessionFrom(c)
	if !ok {
		return Session{}, fiber.NewError(fiber.StatusUnauthorized, "not logged in")
	}
	return sess, nil
}

func setSession(c *fiber.Ctx, sess Session) {
	c.Locals(sessionKey, sess)
	c.Locals("user_id", sess.UserID)
}
