package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kcbot/assistant"
	"github.com/m3rciful/kcbot/backend/postgres"
	"github.com/m3rciful/kcbot/core/logger"
)

const (
	jobTypeDailyBrief = "daily_brief"

	jobPollInterval = 15 * time.Second
	jobTimeout      = 30 * time.Second
)

type dailyBriefPayload struct {
	ChatID int64 `json:"chat_id"`
}

// jobWorker drains the relational job queue. Jobs survive restarts and the
// queue's retry budget covers transient Telegram or backend failures.
type jobWorker struct {
	app  *App
	bot  *tele.Bot
	stop chan struct{}
	done chan struct{}
}

func newJobWorker(app *App, bot *tele.Bot) *jobWorker {
	return &jobWorker{
		app:  app,
		bot:  bot,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (w *jobWorker) run() {
	defer close(w.done)
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()
	for {
		w.drain()
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}
	}
}

func (w *jobWorker) shutdown() {
	close(w.stop)
	<-w.done
}

// drain claims and executes runnable jobs until the queue is empty.
func (w *jobWorker) drain() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		job, err := w.app.pg.ClaimNextJob(ctx)
		if err != nil {
			logger.Warn(ctx, "jobs", "claim.fail", slog.String("err", err.Error()))
			cancel()
			return
		}
		if job == nil {
			cancel()
			return
		}

		if err := w.execute(ctx, job); err != nil {
			logger.Warn(ctx, "jobs", "job.fail",
				slog.String("job_id", job.ID),
				slog.String("type", job.Type),
				slog.Int("retry_count", job.RetryCount),
				slog.String("err", err.Error()),
			)
			if ferr := w.app.pg.MarkJobFailed(ctx, job.ID, err); ferr != nil {
				logger.Error(ctx, "jobs", "job.requeue.fail",
					slog.String("job_id", job.ID),
					slog.String("err", ferr.Error()),
				)
			}
		} else if derr := w.app.pg.MarkJobDone(ctx, job.ID); derr != nil {
			logger.Error(ctx, "jobs", "job.finalize.fail",
				slog.String("job_id", job.ID),
				slog.String("err", derr.Error()),
			)
		}
		cancel()
	}
}

func (w *jobWorker) execute(ctx context.Context, job *postgres.Job) error {
	switch job.Type {
	case jobTypeDailyBrief:
		var p dailyBriefPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("bot: decode %s payload: %w", job.Type, err)
		}
		return w.sendDailyBrief(ctx, p.ChatID)
	}
	return fmt.Errorf("bot: unknown job type %q", job.Type)
}

func (w *jobWorker) sendDailyBrief(ctx context.Context, chatID int64) error {
	b := w.app.resolver.Resolve(ctx)
	tzName, err := b.GetSetting(ctx, assistant.SettingTimezone, w.app.cfg.Assistant.Timezone)
	if err != nil {
		tzName = w.app.cfg.Assistant.Timezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		loc = time.UTC
	}

	text, err := assistant.BuildDailyBrief(ctx, b, chatID, time.Now().In(loc), loc)
	if err != nil {
		return err
	}
	if _, err := w.bot.Send(tele.ChatID(chatID), text); err != nil {
		return err
	}
	return nil
}
