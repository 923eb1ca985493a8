package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"intentbot/internal/reminder"
	"intentbot/internal/timeparse"
	"intentbot/internal/transport/telegram/router"
	logx "intentbot/pkg/logx"
)

// Handlers implements the reminder commands on top of a registry.
type Handlers struct {
	reg    *reminder.Registry
	parser *timeparse.Parser
	now    func() time.Time
}

func NewHandlers(reg *reminder.Registry, parser *timeparse.Parser, now func() time.Time) *Handlers {
	if now == nil {
		now = time.Now
	}
	return &Handlers{reg: reg, parser: parser, now: now}
}

// Commands returns the command table. Only Latin names go to the menu.
func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "remind",
			Aliases:     []string{"want", "хочу", "напомни"},
			Description: "добавить дело",
			Usage:       "/remind <когда> <что>",
			Menu:        true,
			Handle:      h.remind,
		},
		{
			Name:        "done",
			Aliases:     []string{"cancel", "delete", "сделал", "отмени", "удали"},
			Description: "завершить дела по идентификаторам",
			Usage:       "/done <id> [id...]",
			Menu:        true,
			Handle:      h.done,
		},
		{
			Name:        "list",
			Aliases:     []string{"todo", "список", "дела"},
			Description: "показать дела",
			Usage:       "/list",
			Menu:        true,
			Handle:      h.list,
		},
	}
}

func (h *Handlers) store(ctx context.Context, req *router.Request) (*reminder.Store, error) {
	s, err := h.reg.Get(ctx, req.Chat.ChatID)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func (h *Handlers) remind(ctx context.Context, req *router.Request) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return router.UserMsg("Напишите, о чём напомнить, например: /" + req.Word + " завтра в 9 позвонить маме")
	}
	res, err := h.parser.Parse(text, h.now())
	if err != nil {
		var perr *timeparse.Error
		if errors.As(err, &perr) {
			return &router.UserError{Msg: "Не понял время: " + perr.Err.Error(), Err: err}
		}
		return err
	}
	s, err := h.store(ctx, req)
	if err != nil {
		return err
	}
	it, err := s.Create(ctx, text, res.Due, res.Schedulable())
	if errors.Is(err, reminder.ErrIdentitySpaceExhausted) {
		return &router.UserError{Msg: "Слишком много дел, завершите какие-нибудь через /done", Err: err}
	}
	if err != nil {
		return err
	}
	req.Logger.Debug("reminder created",
		logx.Int64("id", int64(it.ID())),
		logx.Bool("schedulable", it.Schedulable()),
		logx.String("source", res.Source),
	)
	return nil
}

// done resolves every id given. Bad tokens are reported together after the
// valid ids have been processed.
func (h *Handlers) done(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return router.UserMsg("Укажите идентификаторы: /" + req.Word + " 12 34")
	}
	s, err := h.store(ctx, req)
	if err != nil {
		return err
	}
	var bad []string
	for _, tok := range req.Args {
		id, err := reminder.ParseID(tok)
		if err != nil {
			bad = append(bad, tok)
			continue
		}
		if _, err := s.DeleteByID(ctx, id); err != nil {
			return err
		}
	}
	if len(bad) > 0 {
		return router.UserMsg("Неверный идентификатор: " + strings.Join(bad, ", "))
	}
	return nil
}

func (h *Handlers) list(ctx context.Context, req *router.Request) error {
	s, err := h.store(ctx, req)
	if err != nil {
		return err
	}
	s.ListAll(ctx)
	return nil
}
