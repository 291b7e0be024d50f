package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"xhiqi-bot/internal/app"
	"xhiqi-bot/internal/config"
	"xhiqi-bot/internal/discord"
	"xhiqi-bot/internal/health"
)

func main() {
	if err := run(); err != nil {
		slog.Error("xhiqi-bot exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	personaFile := pflag.String("persona", "", "persona YAML file (overrides PERSONA_FILE)")
	healthAddr := pflag.String("health-addr", "", "health server address (overrides HEALTH_ADDR); \"-\" disables it")
	noMentions := pflag.Bool("no-mentions", false, "only answer the /talk command")
	pflag.Parse()

	loaded, err := config.LoadDotEnv(*envFile)
	if err != nil {
		return err
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if *personaFile != "" {
		cfg.PersonaFile = *personaFile
	}
	if *healthAddr != "" {
		cfg.HealthAddr = *healthAddr
	}
	if err := cfg.RequireDiscord(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("xhiqi-bot starting", "env_file", *envFile, "env_file_loaded", loaded)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, logger, cfg)
	if err != nil {
		return err
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return err
	}
	bot, err := discord.New(a.Talk,
		discord.WithLogger(logger),
		discord.WithGuild(cfg.GuildID),
		discord.WithMentionReplies(!*noMentions),
	)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(ctx, session)
	})
	if cfg.HealthAddr != "-" {
		srv, err := health.New(cfg.HealthAddr,
			health.WithLogger(logger),
			health.WithCheck("discord", bot.Check),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return srv.Serve(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("xhiqi-bot stopped")
	return nil
}
