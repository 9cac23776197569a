// Command duelbot joins a match and plays it out with a fixed strategy. Useful for smoke testing a server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/client"
	"github.com/DoyleJ11/duel-backend/internal/logger"
	"go.uber.org/zap"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "duel server base URL")
	matchID := flag.String("match", "", "match id to join (required)")
	ident := flag.String("identity", "duelbot", "player identity")
	token := flag.String("token", os.Getenv("SERVICE_TOKEN"), "service token sent as a bearer token")
	team := flag.Int("team", 3, "number of fighters to pick")
	timeout := flag.Duration("timeout", 2*time.Minute, "max wait for any server message")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *matchID == "" {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(*level, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	c, err := client.Dial(ctx, *server, *ident, header)
	cancel()
	if err != nil {
		log.Fatal("dial failed", zap.Error(err))
	}
	defer c.Close()

	bot := &client.Bot{C: c, TeamSize: *team, Timeout: *timeout, Log: log.With(zap.String("identity", *ident))}
	res, err := bot.Play(*matchID)
	if err != nil {
		log.Fatal("play failed", zap.Error(err))
	}
	if res.Winner == *ident {
		log.Info("won", zap.String("reason", res.Reason))
		return
	}
	log.Info("did not win", zap.String("winner", res.Winner), zap.String("reason", res.Reason))
}
