// Package main runs an embedded Redis-compatible server as the agent's local
// durable medium for development, so the offline-first flow can be exercised
// without a system Redis install.
//
// Usage:
//
//	go run cmd/localstore/main.go
//
// Point the agent at it with REDIS_ADDR (default 127.0.0.1:6379).
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	"github.com/guido-cesarano/tasksync/pkg/logger"
)

func main() {
	addr := os.Getenv("LOCALSTORE_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	s := miniredis.NewMiniRedis()
	if err := s.StartAddr(addr); err != nil {
		logger.Log.Fatal().Err(err).Str("addr", addr).Msg("Failed to start local store")
	}
	defer s.Close()

	logger.Log.Info().Str("addr", s.Addr()).Msg("Local store started")

	// Wait for interrupt signal to gracefully shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Log.Info().Msg("Shutting down local store...")
}
