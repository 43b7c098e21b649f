package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VibeTown/internal/adapters/signal"
	"github.com/dkeye/VibeTown/internal/config"
	"github.com/dkeye/VibeTown/internal/core"
	"github.com/dkeye/VibeTown/internal/domain"
	"github.com/dkeye/VibeTown/internal/protocol"
	"github.com/dkeye/VibeTown/internal/voice"
)

const (
	profileName   = "name"
	profileAvatar = "avatar"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Profile is the join hint remembered in the cookie session.
type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms core.RoomManager) (*gin.Engine, error) {
	voiceCfg, err := voice.NewClientConfig(cfg.Voice)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VibeTownSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	limiter := signal.NewJoinLimiter(cfg.Transport.JoinLimit, cfg.Transport.JoinWindow)
	ctrl := signal.NewSignalWSController(rooms, limiter, signal.OptionsFromConfig(cfg.Transport))

	api := r.Group("/api")

	api.GET("/ws/room", func(c *gin.Context) {
		name := c.Query("room")
		if name == "" {
			name = cfg.Room.Name
		}
		p := loadProfile(sessions.Default(c))
		hint := core.JoinOptions{
			Nickname: c.DefaultQuery("name", p.Name),
			Avatar:   c.DefaultQuery("avatar", p.Avatar),
		}
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Str("room", name).Msg("ws room endpoint hit")
		ctrl.HandleRoom(ctx, c, domain.RoomName(name), hint)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, rooms.List())
	})
	api.GET("/rooms/:name", func(c *gin.Context) {
		room, ok := rooms.Get(domain.RoomName(c.Param("name")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, room.Info())
	})
	api.GET("/rooms/:name/members", func(c *gin.Context) {
		room, ok := rooms.Get(domain.RoomName(c.Param("name")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		members, err := room.Members(c.Request.Context())
		if errors.Is(err, domain.ErrRoomDisposed) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, members)
	})
	api.DELETE("/rooms/:name", func(c *gin.Context) {
		if !rooms.StopRoom(domain.RoomName(c.Param("name"))) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/profile", func(c *gin.Context) {
		c.JSON(http.StatusOK, loadProfile(sessions.Default(c)))
	})
	api.PUT("/profile", func(c *gin.Context) {
		var p Profile
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.Name = domain.NicknameHint(p.Name)
		p.Avatar = domain.AvatarHint(p.Avatar)
		s := sessions.Default(c)
		s.Set(profileName, p.Name)
		s.Set(profileAvatar, p.Avatar)
		if err := s.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "profile not saved"})
			return
		}
		c.JSON(http.StatusOK, p)
	})

	api.GET("/voice/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, voiceCfg)
	})
	api.GET("/protocol/schema", func(c *gin.Context) {
		c.JSON(http.StatusOK, protocol.Schema())
	})

	return r, nil
}

func loadProfile(s sessions.Session) Profile {
	name, _ := s.Get(profileName).(string)
	avatar, _ := s.Get(profileAvatar).(string)
	return Profile{Name: name, Avatar: avatar}
}
