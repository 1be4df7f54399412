package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Gustiele12/plataform/peer"
	"github.com/Gustiele12/plataform/peer/media"
	signalingClient "github.com/Gustiele12/plataform/peer/signaling"
	"github.com/Gustiele12/plataform/peer/view"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const roomTokenLength = 5

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		serverURL = fs.StringP("server", "s", "ws://localhost:3000/signal", "signaling relay url")
		roomID    = fs.StringP("room", "r", "", "room to join, random token if empty")
		logLevel  = fs.StringP("log-level", "l", "debug", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	if *roomID == "" {
		*roomID = randomRoomToken()
		logger.Info().Str("roomID", *roomID).Msg("generated room token")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := signalingClient.NewClient(*serverURL, &logger)
	if err = client.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to relay")
	}

	mgr := peer.NewManager(peer.Config{
		Logger:   &logger,
		Signaler: client,
		Dialer:   peer.NewDialer(peer.DefaultSTUNServers),
		View:     view.NewTiles(&logger),
		OpenMedia: func() (peer.Media, error) {
			stream, mErr := media.Open(media.NewPatternSource(), &logger)
			if mErr != nil {
				return nil, mErr
			}
			stream.Play(ctx)
			return stream, nil
		},
	})

	if err = mgr.Join(*roomID); err != nil {
		logger.Fatal().Err(err).Msg("failed to join room")
	}

	mgr.Run(ctx, client.Incoming())

	if err = mgr.Leave(); err != nil {
		logger.Debug().Err(err).Msg("leave on shutdown")
	}
	client.Close()
}

func randomRoomToken() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return token[:roomTokenLength]
}
