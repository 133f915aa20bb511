package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gadgets/internal/logger"
	"gadgets/internal/models"
)

const (
	sessionUserID    = "user_id"
	currentUserKey   = "currentUser"
	unauthenticated  = "Unauthenticated."
	invalidLoginText = "These credentials do not match our records."
)

// mustLogin loads the session user. Pages redirect to /login, JSON clients
// get 401.
func (s *Server) mustLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		id, _ := sess.Get(sessionUserID).(uint)

		var u models.User
		err := gorm.ErrRecordNotFound
		if id != 0 {
			err = s.db.WithContext(c.Request.Context()).First(&u, id).Error
		}
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				logger.GetGinLogger(c).Error("load session user", zap.Error(err))
			}
			sess.Clear()
			_ = sess.Save()
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": unauthenticated})
				return
			}
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}

		c.Set(currentUserKey, &u)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(currentUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

func (s *Server) loginForm(c *gin.Context) {
	c.HTML(http.StatusOK, "login", gin.H{"Flashes": popFlashes(c)})
}

func (s *Server) login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	pw := c.PostForm("password")
	if email == "" || pw == "" {
		c.HTML(http.StatusUnprocessableEntity, "login", gin.H{"Error": "Fill all fields", "Email": email})
		return
	}

	var u models.User
	if err := s.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&u).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.GetGinLogger(c).Error("login lookup", zap.Error(err))
		}
		c.HTML(http.StatusUnauthorized, "login", gin.H{"Error": invalidLoginText, "Email": email})
		return
	}
	if !models.CheckPassword(u.PasswordHash, pw) {
		c.HTML(http.StatusUnauthorized, "login", gin.H{"Error": invalidLoginText, "Email": email})
		return
	}

	sess := sessions.Default(c)
	sess.Clear()
	sess.Set(sessionUserID, u.ID)
	if err := sess.Save(); err != nil {
		logger.GetGinLogger(c).Error("save session", zap.Error(err))
		c.String(http.StatusInternalServerError, serverErrorText)
		return
	}
	logger.GetGinLogger(c).Info("user logged in", zap.Uint("user_id", u.ID))
	c.Redirect(http.StatusSeeOther, gadgetsPath)
}

func (s *Server) logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	_ = sess.Save()
	c.Redirect(http.StatusSeeOther, "/login")
}
