package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/store"
)

const (
	sessionUserIDKey   = "user_id"
	sessionUserNameKey = "user_name"
	sessionTokenKey    = "store_token"

	actingUserContextKey = "__acting_user"
)

type sessionPayload struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CreateSession 处理登录：校验令牌或账号密码，并建立会话
func (a *API) CreateSession(c *gin.Context) {
	var payload sessionPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	cred := store.Credentials{
		Token:    strings.TrimSpace(payload.Token),
		Name:     strings.TrimSpace(payload.Name),
		Password: payload.Password,
	}
	if cred.Token == "" && (cred.Name == "" || cred.Password == "") {
		respondError(c, http.StatusBadRequest, "请提供访问令牌或账号密码")
		return
	}

	user, err := a.auth.Authenticate(c.Request.Context(), cred)
	if err != nil {
		if errors.Is(err, store.ErrPermissionDenied) {
			respondError(c, http.StatusUnauthorized, "用户名或密码错误")
			return
		}
		respondError(c, http.StatusInternalServerError, "登录失败，请稍后重试")
		return
	}

	// 设置会话
	session := sessions.Default(c)
	session.Set(sessionUserIDKey, user.ID)
	session.Set(sessionUserNameKey, user.Name)
	if cred.Token != "" {
		session.Set(sessionTokenKey, cred.Token)
	}
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userToPayload(user)})
}

// GetSession 返回当前会话对应的用户信息
func (a *API) GetSession(c *gin.Context) {
	session := sessions.Default(c)
	userID, _ := session.Get(sessionUserIDKey).(string)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "尚未登录")
		return
	}
	name, _ := session.Get(sessionUserNameKey).(string)
	c.JSON(http.StatusOK, gin.H{"user": userToPayload(store.UserRef{ID: userID, Name: name})})
}

// DeleteSession 处理登出
func (a *API) DeleteSession(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RequireUser 是认证中间件：未登录的请求一律拦下。
// 会话里带有存储令牌时写入请求 context，远端存储据此执行访问规则。
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, _ := session.Get(sessionUserIDKey).(string)
		if userID == "" {
			respondError(c, http.StatusUnauthorized, "尚未登录")
			c.Abort()
			return
		}
		c.Set(actingUserContextKey, userID)
		if token, ok := session.Get(sessionTokenKey).(string); ok && token != "" {
			c.Request = c.Request.WithContext(store.WithToken(c.Request.Context(), token))
		}
		c.Next()
	}
}

// actingUser 取出中间件解析好的用户 ID
func actingUser(c *gin.Context) string {
	return c.GetString(actingUserContextKey)
}

func userToPayload(user store.UserRef) gin.H {
	return gin.H{
		"id":   user.ID,
		"name": user.Name,
	}
}
