/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"p2p-coin-desk-go/internal/admin"
	"p2p-coin-desk-go/internal/api"
	"p2p-coin-desk-go/internal/audit"
	"p2p-coin-desk-go/internal/chat"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/notify"
	"p2p-coin-desk-go/internal/workflow"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Desk     *api.DeskService
	Workflow *workflow.Workflow
	Chat     *chat.Channel
	Notify   *notify.Service
	Audit    *audit.Log
	Gate     *admin.Gate
}

// Server is the HTTP and websocket surface of the desk.
type Server struct {
	echo     *echo.Echo
	cfg      models.ServerConfig
	deps     Deps
	secret   []byte
	upgrader websocket.Upgrader
}

func New(cfg models.ServerConfig, auth models.AuthConfig, deps Deps) (*Server, error) {
	if auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret cannot be empty")
	}
	if deps.Desk == nil || deps.Workflow == nil || deps.Chat == nil || deps.Notify == nil || deps.Audit == nil || deps.Gate == nil {
		return nil, fmt.Errorf("server dependencies are incomplete")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		deps:   deps,
		secret: []byte(auth.JWTSecret),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.BodyLimit("12M"))

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/healthz", s.health)
	e.GET("/v1/settings", s.settings)
	e.GET("/v1/coins", s.listCoins)

	user := e.Group("/v1", s.identity)
	user.POST("/requests/buy", s.submit(models.RequestTypeBuy))
	user.POST("/requests/sell", s.submit(models.RequestTypeSell))
	user.GET("/requests", s.listMine)
	user.GET("/requests/:id", s.getRequest)
	user.GET("/requests/:id/messages", s.listMessages)
	user.POST("/requests/:id/messages", s.sendMessage)
	user.GET("/notifications", s.notifications)
	user.POST("/notifications/:id/read", s.markRead)

	// the only routes that accept ?access_token=
	e.GET("/v1/requests/:id/messages/stream", s.streamMessages, s.streamIdentity)
	e.GET("/v1/notifications/stream", s.streamNotifications, s.streamIdentity)

	adm := e.Group("/v1/admin", s.identity, s.requireAdmin)
	adm.GET("/requests", s.listAll)
	adm.POST("/requests/:id/resolve", s.resolve)
	adm.POST("/requests/:id/followup", s.followUp)
	adm.GET("/audit", s.recentAudit)
	adm.PUT("/coins/:id", s.upsertCoin)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	zap.L().Info("HTTP server listening", zap.String("addr", s.cfg.Addr), zap.String("env", s.cfg.Env))
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			if v.Status >= http.StatusInternalServerError {
				zap.L().Error("HTTP request", fields...)
			} else {
				zap.L().Info("HTTP request", fields...)
			}
			return nil
		},
	})
}
