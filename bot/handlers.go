package bot

import (
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kcbot/assistant"
	"github.com/m3rciful/kcbot/backend/notion"
	"github.com/m3rciful/kcbot/core/logger"
	"github.com/m3rciful/kcbot/core/telegram/callbacks"
	"github.com/m3rciful/kcbot/core/telegram/commands"
	"github.com/m3rciful/kcbot/core/telegram/helpers"
	"github.com/m3rciful/kcbot/core/telegram/keyboard"
	tg "github.com/m3rciful/kcbot/core/telegram"
)

func (a *App) registerCommands(reg *tg.Registry) {
	assistantCommands := []struct {
		name        string
		description string
	}{
		{"/note", "Save a note"},
		{"/todo", "Add a task"},
		{"/today", "List open tasks"},
		{"/inbox", "Inbox view of open tasks"},
		{"/done", "Mark a task done"},
		{"/search", "Search notes and tasks"},
		{"/settings", "Show or change settings"},
		{"/cancel", "Cancel the current flow"},
		{"/help", "Show help"},
	}
	for _, cmd := range assistantCommands {
		reg.RegisterCommand(cmd.name, commands.Command{
			Handler:     a.handleUpdate,
			Description: cmd.description,
		})
	}
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleUpdate,
		Description: "Show help",
		Hidden:      true,
	})
	reg.RegisterCommand("/setup", commands.Command{
		Handler:     a.handleSetup,
		Description: "Provision Notion databases",
		AdminOnly:   true,
		Hidden:      true,
	})
}

func (a *App) registerCallbacks(reg *tg.Registry) {
	_ = reg.RegisterCallback(assistant.ActionPickDone, a.handleCallback)
	_ = reg.RegisterCallback(assistant.ActionPickEdit, a.handleCallback)
}

// handleUpdate feeds a message update through the engine and executes the
// resulting intents. Commands and plain text share this path: the engine
// routes the text itself.
func (a *App) handleUpdate(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Chat == nil {
		return nil
	}
	ev := assistant.Event{
		Type:      assistant.EventMessage,
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Text:      msg.Text,
	}
	if s := c.Sender(); s != nil {
		ev.UserID = s.ID
	}

	ctx := helpers.BuildContext(c)
	return a.executeIntents(c, a.engine.Handle(ctx, ev))
}

// handleCallback feeds a button press through the engine. The callback
// action and params are decoded from the wire data.
func (a *App) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	ev := assistant.Event{
		Type:      assistant.EventCallback,
		ChatID:    cb.Message.Chat.ID,
		MessageID: cb.Message.ID,
		Callback: &assistant.Callback{
			Action: callbacks.CallbackKey(c),
			Params: callbacks.DecodeParams(callbacks.CallbackPayload(c)),
		},
	}
	if cb.Sender != nil {
		ev.UserID = cb.Sender.ID
	}

	ctx := helpers.BuildContext(c)
	return a.executeIntents(c, a.engine.Handle(ctx, ev))
}

// handleSetup provisions the Notion databases under the given parent page.
// Only a token is required: this is the command that produces the database
// ids that complete the Notion configuration.
func (a *App) handleSetup(c tele.Context) error {
	if strings.TrimSpace(a.cfg.Notion.Token) == "" {
		return helpers.SendText(c, "Notion token is not configured.")
	}
	fields := strings.Fields(c.Text())
	if len(fields) < 2 {
		return helpers.SendText(c, "Missing parent page id. Usage: /setup <parent_page_id>")
	}

	client := a.notion
	if client == nil {
		client = notion.New(notion.Config{
			Token:   a.cfg.Notion.Token,
			Version: a.cfg.Notion.Version,
		})
	}

	ctx := helpers.BuildContext(c)
	res, err := client.SetupDatabases(ctx, fields[1])
	if err != nil {
		logger.Error(ctx, "notion", "setup.fail", slog.String("err", err.Error()))
		return helpers.SendText(c, "Setup failed: "+err.Error())
	}

	if a.pg != nil {
		if err := a.pg.SetSetting(ctx, "notion_notes_db_id", res.NotesDB); err == nil {
			_ = a.pg.SetSetting(ctx, "notion_tasks_db_id", res.TasksDB)
		}
	}

	return helpers.SendText(c,
		"Notion databases created.\n"+
			"notes_db_id: "+res.NotesDB+"\n"+
			"tasks_db_id: "+res.TasksDB+"\n"+
			"Set NOTION_NOTES_DB_ID and NOTION_TASKS_DB_ID, then restart.")
}

// executeIntents performs the engine's side effects in order. A Reply
// immediately followed by a CacheTaskList is sent synchronously so the
// snapshot can be stored under the real message id; everything else goes
// through the async send helpers.
func (a *App) executeIntents(c tele.Context, intents []assistant.Intent) error {
	for i := 0; i < len(intents); i++ {
		switch in := intents[i].(type) {
		case assistant.Reply:
			var cache *assistant.CacheTaskList
			if i+1 < len(intents) {
				if cl, ok := intents[i+1].(assistant.CacheTaskList); ok {
					cache = &cl
					i++
				}
			}
			if err := a.sendReply(c, in, cache); err != nil {
				return err
			}

		case assistant.Edit:
			if in.Text == "" {
				continue
			}
			a.editListMessage(c, in)

		case assistant.CacheTaskList:
			// Unpaired snapshot; nothing was sent to anchor it to.
		}
	}
	return nil
}

func (a *App) sendReply(c tele.Context, in assistant.Reply, cache *assistant.CacheTaskList) error {
	opts := &tele.SendOptions{
		ReplyMarkup:           toTeleMarkup(in.Markup),
		DisableWebPagePreview: in.DisablePreview,
	}

	if cache == nil {
		return helpers.SendText(c, in.Text, opts)
	}

	msg, err := c.Bot().Send(tele.ChatID(in.ChatID), in.Text, opts)
	if err != nil {
		return err
	}
	a.store.CacheList(in.ChatID, msg.ID, assistant.CachedList{
		Kind:  cache.ListKind,
		Tasks: cache.Tasks,
		Text:  cache.Text,
	})
	return nil
}

// editListMessage rewrites a previously sent list message in place.
// Failures are logged and swallowed: the underlying task change already
// happened.
func (a *App) editListMessage(c tele.Context, in assistant.Edit) {
	target := &tele.Message{ID: in.MessageID, Chat: &tele.Chat{ID: in.ChatID}}
	opts := &tele.SendOptions{ReplyMarkup: toTeleMarkup(in.Markup)}
	if _, err := c.Bot().Edit(target, in.Text, opts); err != nil {
		ctx := helpers.BuildContext(c)
		logger.Warn(ctx, "assistant", "list.edit.fail",
			slog.Int("message_id", in.MessageID),
			slog.String("err", err.Error()),
		)
	}
}

// toTeleMarkup converts engine markup into a Telegram inline keyboard.
// Callback params ride in the payload part of the callback data.
func toTeleMarkup(m *assistant.Markup) *tele.ReplyMarkup {
	if m == nil || len(m.Rows) == 0 {
		return nil
	}

	hasURL := false
	for _, row := range m.Rows {
		for _, b := range row {
			if b.URL != "" {
				hasURL = true
			}
		}
	}

	if !hasURL {
		rows := make([][]keyboard.InlineBtn, 0, len(m.Rows))
		for _, row := range m.Rows {
			btns := make([]keyboard.InlineBtn, 0, len(row))
			for _, b := range row {
				btns = append(btns, keyboard.InlineBtn{
					Text:   b.Text,
					Unique: b.Action,
					Data:   callbacks.EncodeParams(b.Params),
				})
			}
			rows = append(rows, btns)
		}
		return keyboard.InlineButtonsRows(rows...)
	}

	rm := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, row := range m.Rows {
		var btns []tele.Btn
		for _, b := range row {
			if b.URL != "" {
				btns = append(btns, rm.URL(b.Text, b.URL))
				continue
			}
			if params := callbacks.EncodeParams(b.Params); params != "" {
				btns = append(btns, rm.Data(b.Text, b.Action, params))
			} else {
				btns = append(btns, rm.Data(b.Text, b.Action))
			}
		}
		rows = append(rows, rm.Row(btns...))
	}
	rm.Inline(rows...)
	return rm
}
