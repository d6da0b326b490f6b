package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reels-funnel-bot/bot"
	"reels-funnel-bot/model"
	"reels-funnel-bot/receipt"
	"reels-funnel-bot/reminder"
	"reels-funnel-bot/store"
	"reels-funnel-bot/vision"

	"github.com/glebarez/sqlite"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the funnel bot and reminder schedulers",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			token := viper.GetString("telegram.token")
			if token == "" {
				return fmt.Errorf("telegram.token is not set")
			}

			db, err := openDatabase()
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}

			st := store.New(db)
			if err := st.AutoMigrate(); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}

			catalog, err := reminder.LoadCatalog(viper.GetString("reminders.catalog"))
			if err != nil {
				return err
			}

			gemini := vision.NewGemini(viper.GetString("gemini.api_key"), viper.GetString("gemini.model"))
			validator := receipt.NewValidator(gemini, logger)

			b, err := bot.New(token, st, validator, botConfigFromViper(), logger)
			if err != nil {
				return fmt.Errorf("create bot: %w", err)
			}

			sender := &reminder.TelebotSender{B: b.B}
			sched := reminder.NewScheduler(st, sender, catalog, logger)
			if viper.IsSet("reminders.level1") {
				sched.Thresholds = [3]time.Duration{
					viper.GetDuration("reminders.level1"),
					viper.GetDuration("reminders.level2"),
					viper.GetDuration("reminders.level3"),
				}
			}
			warmup := reminder.NewWarmup(st, sender, catalog, viper.GetStringSlice("warmup.photos"), logger)
			if viper.IsSet("warmup.threshold") {
				warmup.Threshold = viper.GetDuration("warmup.threshold")
			}

			c := cron.New()
			c.AddFunc("* * * * *", sched.Tick)
			c.AddFunc("*/2 * * * *", warmup.Tick)
			c.Start()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("bot started")

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				b.Start()
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				<-c.Stop().Done()
				b.Stop()
				return nil
			})
			return g.Wait()
		},
	}
	return cmd
}

func openDatabase() (*gorm.DB, error) {
	dsn := viper.GetString("database.dsn")
	switch viper.GetString("database.driver") {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		if dsn == "" {
			dsn = "funnel.db"
		}
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
}

func botConfigFromViper() bot.Config {
	viper.SetDefault("assistant.url", "https://t.me/vetalsmirnov")
	viper.SetDefault("payment.invite_ttl", 24*time.Hour)
	viper.SetDefault("payment.rub.amount", 2000)

	var videos [3]string
	for i, ref := range viper.GetStringSlice("funnel.videos") {
		if i >= len(videos) {
			break
		}
		videos[i] = ref
	}

	payments := map[model.Currency]bot.PaymentOption{
		model.CurrencyRUB: {
			Amount: viper.GetInt("payment.rub.amount"),
			Card:   viper.GetString("payment.rub.card"),
			Symbol: "₽",
		},
	}
	if viper.IsSet("payment.uah.card") {
		payments[model.CurrencyUAH] = bot.PaymentOption{
			Amount: viper.GetInt("payment.uah.amount"),
			Card:   viper.GetString("payment.uah.card"),
			Symbol: "₴",
		}
	}

	return bot.Config{
		ChannelID:    viper.GetInt64("telegram.channel_id"),
		AssistantURL: viper.GetString("assistant.url"),
		Videos:       videos,
		Payments:     payments,
		InviteTTL:    viper.GetDuration("payment.invite_ttl"),
	}
}
