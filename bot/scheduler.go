package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kcbot/assistant"
	"github.com/m3rciful/kcbot/core/logger"
)

// briefScheduler fires the daily brief at the configured local time.
type briefScheduler struct {
	app  *App
	cron *cron.Cron
}

func newBriefScheduler(app *App) *briefScheduler {
	return &briefScheduler{app: app}
}

// start schedules the brief job. A zero brief chat id disables scheduling.
// The time and timezone come from settings, falling back to the static
// configuration defaults.
func (s *briefScheduler) start(ctx context.Context, bot *tele.Bot) {
	chatID := s.app.cfg.Assistant.BriefChatID
	if chatID == 0 || bot == nil {
		logger.Info(ctx, "assistant.brief", "scheduler.disabled")
		return
	}

	b := s.app.resolver.Resolve(ctx)
	briefTime, err := b.GetSetting(ctx, assistant.SettingDailyBriefTime, s.app.cfg.Assistant.DailyBriefTime)
	if err != nil {
		briefTime = s.app.cfg.Assistant.DailyBriefTime
	}
	tzName, err := b.GetSetting(ctx, assistant.SettingTimezone, s.app.cfg.Assistant.Timezone)
	if err != nil {
		tzName = s.app.cfg.Assistant.Timezone
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		logger.Warn(ctx, "assistant.brief", "timezone.invalid",
			slog.String("timezone", tzName))
		loc = time.UTC
	}

	spec, err := clockToCronSpec(briefTime)
	if err != nil {
		logger.Warn(ctx, "assistant.brief", "brief_time.invalid",
			slog.String("daily_brief_time", briefTime))
		spec = "30 7 * * *"
	}

	s.cron = cron.New(cron.WithLocation(loc))
	_, err = s.cron.AddFunc(spec, func() { s.send(bot, chatID, loc) })
	if err != nil {
		logger.Error(ctx, "assistant.brief", "schedule.fail",
			slog.String("spec", spec),
			slog.String("err", err.Error()))
		return
	}
	s.cron.Start()
	logger.Info(ctx, "assistant.brief", "scheduler.started",
		slog.String("spec", spec),
		slog.String("timezone", loc.String()),
		slog.Int64("chat_id", chatID))
}

func (s *briefScheduler) send(bot *tele.Bot, chatID int64, loc *time.Location) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// With a database behind us the brief goes through the durable job
	// queue, so a flaky send gets retried instead of skipping the day.
	if s.app.pg != nil {
		_, err := s.app.pg.EnqueueJob(ctx, jobTypeDailyBrief, dailyBriefPayload{ChatID: chatID}, time.Now())
		if err != nil {
			logger.Error(ctx, "assistant.brief", "enqueue.fail",
				slog.String("err", err.Error()))
		}
		return
	}

	b := s.app.resolver.Resolve(ctx)
	text, err := assistant.BuildDailyBrief(ctx, b, chatID, time.Now().In(loc), loc)
	if err != nil {
		logger.Error(ctx, "assistant.brief", "build.fail",
			slog.String("backend", b.Kind()),
			slog.String("err", err.Error()))
		return
	}
	if _, err := bot.Send(tele.ChatID(chatID), text); err != nil {
		logger.Error(ctx, "assistant.brief", "send.fail",
			slog.String("err", err.Error()))
	}
}

func (s *briefScheduler) stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// clockToCronSpec turns "HH:MM" into a daily cron spec.
func clockToCronSpec(clock string) (string, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return "", fmt.Errorf("bot: invalid clock time %q", clock)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("bot: invalid clock time %q", clock)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("bot: invalid clock time %q", clock)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
