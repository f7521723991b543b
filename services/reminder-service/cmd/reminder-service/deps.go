package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/reminders"
	"github.com/redis/go-redis/v9"
)

func windowsFromEnv() ([]reminders.Window, error) {
	day, hour := reminders.DayBefore(), reminders.HourBefore()
	var err error
	for _, f := range []struct {
		key string
		dst *time.Duration
	}{
		{"REMINDER_24H_EVERY", &day.Every},
		{"REMINDER_24H_FROM", &day.From},
		{"REMINDER_24H_TO", &day.To},
		{"REMINDER_1H_EVERY", &hour.Every},
		{"REMINDER_1H_FROM", &hour.From},
		{"REMINDER_1H_TO", &hour.To},
	} {
		if *f.dst, err = config.Duration(f.key, *f.dst); err != nil {
			return nil, err
		}
	}
	return []reminders.Window{day, hour}, nil
}

// newLedger returns the configured ledger plus a readiness check for its
// backing store, if any.
func newLedger(pool *db.Pool, resetEvery time.Duration) (ledger.Ledger, func(context.Context) error, error) {
	backend := config.String("LEDGER_BACKEND", "postgres")
	switch backend {
	case "redis":
		addr, err := config.RequiredString("REDIS_ADDR")
		if err != nil {
			return nil, nil, fmt.Errorf("ledger backend redis: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		// Keys outlive one epoch so a missed reset never drops entries early.
		ttl := 2 * resetEvery
		if ttl <= 0 {
			ttl = 48 * time.Hour
		}
		r := ledger.NewRedis(rdb, config.String("LEDGER_REDIS_PREFIX", "reminders:ledger"), ttl)
		l, err := ledger.New(backend, nil, r)
		return l, r.ReadyCheck(), err
	case "postgres":
		l, err := ledger.New(backend, ledger.NewPostgres(pool), nil)
		return l, nil, err
	default:
		l, err := ledger.New(backend, nil, nil)
		return l, nil, err
	}
}

func newDispatcher() (*notify.Dispatcher, error) {
	timeout, err := config.Duration("SMTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	port, err := config.Port("SMTP_PORT", "1025")
	if err != nil {
		return nil, err
	}
	smtpPort, _ := strconv.Atoi(port)
	email := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     config.String("SMTP_HOST", "localhost"),
		Port:     smtpPort,
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
		From:     config.String("SMTP_FROM", "no-reply@clinicbook.local"),
		UseSSL:   config.Bool("SMTP_SSL", false),
		Timeout:  timeout,
	})
	sms, err := notify.NewSMSSender(config.String("SMS_PROVIDER", "noop"), notify.SMSConfig{
		WebhookURL:      config.String("SMS_WEBHOOK_URL", ""),
		WebhookToken:    config.String("SMS_WEBHOOK_TOKEN", ""),
		SMSIRAPIKey:     config.String("SMSIR_API_KEY", ""),
		SMSIRSecretKey:  config.String("SMSIR_SECRET_KEY", ""),
		SMSIRTemplateID: config.String("SMSIR_TEMPLATE_ID", ""),
	})
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(email, sms, notify.DispatcherConfig{
		ClinicName:    config.String("CLINIC_NAME", "ClinicBook"),
		DefaultRegion: config.String("SMS_DEFAULT_REGION", "US"),
	}), nil
}
