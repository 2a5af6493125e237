package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamingbot/internal/config"
	"gamingbot/internal/database"
	"gamingbot/internal/discord"
	"gamingbot/internal/events"
	"gamingbot/internal/logging"
	"gamingbot/internal/notify"
	"gamingbot/internal/redis"
	"gamingbot/internal/scheduler"
	"gamingbot/internal/tracker"
)

const (
	rosterRefreshTimeout = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logSvc, log := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		SinkLevel:  cfg.LogSinkLevel,
		SinkPerSec: 1,
	})
	defer logSvc.Close()

	if err := run(cfg, logSvc, log); err != nil {
		log.Error("❌ bot stopped", logging.Err(err))
		logSvc.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logSvc *logging.Service, log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("🚀 starting",
		logging.String("token", logging.MaskToken(cfg.DiscordToken)),
		logging.String("driver", cfg.DatabaseDriver),
		logging.Duration("cooldown", cfg.Cooldown),
		logging.String("role", cfg.SubscriberRole))

	// Initialize database
	db, err := database.New(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	repository := database.NewRepository(db)

	var cooldowns notify.CooldownStore = repository
	if cfg.RedisDSN != "" {
		rc, err := redis.New(ctx, cfg.RedisDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()
		cooldowns = redis.NewCooldownStore(rc, cfg.Cooldown)
		log.Info("🧊 cooldowns stored in redis")
	}

	bot, err := discord.New(cfg.DiscordToken, log.With(logging.String("component", "discord")))
	if err != nil {
		return err
	}
	roles := discord.NewRoleDirectory(bot.Session())

	sessions := tracker.New(repository, log.With(logging.String("component", "tracker")))
	gate := notify.NewGate(cooldowns, cfg.Cooldown)
	roster := notify.NewRoster(repository, roles, cfg.SubscriberRole, log.With(logging.String("component", "roster")))
	dispatcher := notify.NewDispatcher(gate, roster, discord.NewMessenger(bot.Session()), cfg.DMRatePerSec,
		log.With(logging.String("component", "dispatcher")))

	handler := events.NewHandler(sessions, dispatcher, roster, repository, cfg.SubscriberRole,
		log.With(logging.String("component", "events")))
	commands := discord.NewCommands(cfg.CommandPrefix, repository, roster, gate, roles,
		log.With(logging.String("component", "commands")))

	if err := bot.Start(handler, commands); err != nil {
		return err
	}
	defer bot.Stop()

	if cfg.LogGuildID != "" {
		logSvc.AttachSink(discord.NewChannelSink(bot.Session(), cfg.LogGuildID, cfg.LogChannel))
		log.Info("📝 chat logging enabled", logging.String("channel", cfg.LogChannel))
	}

	sched := scheduler.New(log.With(logging.String("component", "scheduler")))
	if cfg.RosterRefresh != "off" {
		err := sched.Add("roster-refresh", cfg.RosterRefresh, rosterRefreshTimeout, func(ctx context.Context) error {
			guilds, err := repository.ListGuilds(ctx)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(guilds))
			for _, g := range guilds {
				ids = append(ids, g.ID)
			}
			return roster.RefreshAll(ctx, ids)
		})
		if err != nil {
			return err
		}
	}
	sched.Start()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Info("Shutting down bot...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	sched.Stop(shutdownCtx)
	logSvc.DetachSink()
	return nil
}
