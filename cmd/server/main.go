// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/neverhq/never-service/internal/auth"
	"github.com/neverhq/never-service/internal/cache"
	"github.com/neverhq/never-service/internal/database"
	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/handlers"
	"github.com/neverhq/never-service/internal/lobby"
	"github.com/neverhq/never-service/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// persisted keys keep sessions alive across restarts; without them a
	// fresh pair is generated and guests just re-authenticate
	var err error
	if priv, pub := os.Getenv("AUTH_PRIVATE_KEY_FILE"), os.Getenv("AUTH_PUBLIC_KEY_FILE"); priv != "" && pub != "" {
		err = auth.InitFromPath(priv, pub)
	} else {
		err = auth.Init()
	}
	if err != nil {
		log.Fatalf("auth init: %v", err)
	}

	ctx := context.Background()
	db, err := database.Connect(ctx)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}

	// snapshot cache is optional; the service runs fine without Redis
	snapshots, err := cache.Connect(ctx)
	if err != nil {
		logger.Warnf("redis unavailable, snapshot cache disabled: %v", err)
		snapshots = nil
	}

	registry := game.NewRegistry(game.NewNever())
	svc := lobby.NewService(db, registry, logger)
	srv := handlers.NewServer(logger, db, svc, snapshots)

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()
	mux.Handle("/lobby/create", logged(srv.CreateLobbyHandler()))
	mux.Handle("/lobby/join", logged(srv.JoinLobbyHandler()))
	mux.Handle("/lobby/state", logged(srv.LobbyStateHandler()))
	mux.Handle("/lobby/answer", logged(srv.SubmitAnswerHandler()))
	mux.Handle("/lobby/leave", logged(srv.LeaveLobbyHandler()))
	mux.Handle("/room/ws", logged(srv.RoomWSHandler()))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
