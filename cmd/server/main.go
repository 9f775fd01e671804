package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aashish-nayak/WatchTOgather/internal/logging"
	"github.com/aashish-nayak/WatchTOgather/internal/server"
	"github.com/aashish-nayak/WatchTOgather/internal/signaling"
)

func main() {
	logging.Init(slog.LevelInfo)

	hub := signaling.NewHub()
	go hub.Run()

	http.HandleFunc("/", server.Index)
	http.HandleFunc("/health", server.Health(hub))
	http.HandleFunc("/ws", server.ServeWs(hub))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	slog.Info("starting signaling server", "port", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}
