// Package router dispatches chat commands to handlers.
//
// Commands are a flat table keyed by name and aliases. Each incoming command
// runs on a worker picked by hashing the chat id, so commands of one chat run
// in arrival order while different chats proceed in parallel.
package router

import (
	"context"
	"errors"
	"hash/fnv"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "intentbot/internal/runtime/supervisor"
	kit "intentbot/internal/transport"
	logx "intentbot/pkg/logx"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	// Menu lists the command in the platform command menu. Only Latin names
	// are accepted there.
	Menu    bool
	Timeout time.Duration
	Handle  HandlerFunc
}

// Request is one command invocation.
type Request struct {
	Message kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string // canonical name
	Word    string // word the user typed
	Text    string // raw text after the command word
	Args    []string
	ReqID   string
	Logger  logx.Logger

	sender kit.Sender
}

// Reply sends text to the request's chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.sender.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

type Options struct {
	Log    logx.Logger
	Sender kit.Sender
	// Workers defaults to NumCPU, minimum 2.
	Workers int
	// QueueSize is the per-worker backlog; defaults to 64.
	QueueSize      int
	DefaultTimeout time.Duration
}

type Router struct {
	log     logx.Logger
	sender  kit.Sender
	workers int
	qsize   int
	timeout time.Duration

	mu    sync.RWMutex
	table map[string]*Command
	cmds  []Command

	runMu  sync.Mutex
	queues []chan func()
}

func New(opt Options) *Router {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	workers := opt.Workers
	if workers <= 0 {
		workers = max(2, runtime.NumCPU())
	}
	qsize := opt.QueueSize
	if qsize <= 0 {
		qsize = 64
	}
	return &Router{
		log:     log,
		sender:  opt.Sender,
		workers: workers,
		qsize:   qsize,
		timeout: opt.DefaultTimeout,
		table:   map[string]*Command{},
	}
}

// SetCommands replaces the command table. A help command listing every
// command is always added.
func (r *Router) SetCommands(cmds []Command) error {
	help := Command{
		Name:        "help",
		Aliases:     []string{"start", "помощь"},
		Description: "что умеет бот",
		Usage:       "/help",
		Menu:        true,
	}
	all := append(append([]Command(nil), cmds...), help)

	table := map[string]*Command{}
	for i := range all {
		c := &all[i]
		if c.Name == "help" && c.Handle == nil {
			c.Handle = r.handleHelp
		}
		if c.Handle == nil || strings.TrimSpace(c.Name) == "" {
			return errors.New("router: command needs a name and a handler")
		}
		for _, w := range append([]string{c.Name}, c.Aliases...) {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" {
				continue
			}
			if prev, ok := table[w]; ok {
				return errors.New("router: " + w + " is used by both " + prev.Name + " and " + c.Name)
			}
			table[w] = c
		}
	}

	r.mu.Lock()
	r.table = table
	r.cmds = all
	r.mu.Unlock()
	return nil
}

// Commands returns the command table in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.cmds...)
}

// MenuCommands returns the entries for the platform menu, sorted by name.
func (r *Router) MenuCommands() []kit.BotCommand {
	out := []kit.BotCommand{}
	for _, c := range r.Commands() {
		if c.Menu {
			out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Run consumes messages until ctx is done or in is closed, then waits briefly
// for queued commands to finish.
func (r *Router) Run(ctx context.Context, in <-chan kit.Message) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log))
	queues := make([]chan func(), r.workers)
	for i := range queues {
		q := make(chan func(), r.qsize)
		queues[i] = q
		sup.GoRestart("router.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-q:
					if !ok {
						return nil
					}
					job()
				}
			}
		}, rtsup.WithBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.runMu.Lock()
	r.queues = queues
	r.runMu.Unlock()
	r.log.Info("router started", logx.Int("workers", r.workers), logx.Int("queue", r.qsize))

	defer func() {
		r.runMu.Lock()
		r.queues = nil
		r.runMu.Unlock()
		for _, q := range queues {
			close(q)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Wait(wctx)
		sup.Cancel()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-in:
			if !ok {
				return nil
			}
			r.route(ctx, m)
		}
	}
}

func (r *Router) route(ctx context.Context, m kit.Message) {
	word, rest, ok := splitCommand(m.Text)
	if !ok {
		return
	}
	r.mu.RLock()
	cmd, found := r.table[word]
	r.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	if !found {
		// Unknown commands in groups may be meant for another bot.
		if m.ChatID > 0 {
			r.send(ctx, chat, "Неизвестная команда. Список команд: /help")
		}
		return
	}

	rid := newReqID()
	req := &Request{
		Message: m,
		Chat:    chat,
		FromID:  m.FromID,
		Command: cmd.Name,
		Word:    word,
		Text:    rest,
		Args:    tokenize(rest),
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", m.ChatID),
			logx.Int64("from_id", m.FromID),
			logx.String("cmd", cmd.Name),
		),
		sender: r.sender,
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))

	job := func() {
		if err := final(ctx, req); err != nil {
			r.replyError(ctx, req, err)
		}
	}
	if !r.enqueue(m.ChatID, job) {
		r.send(ctx, chat, "Бот занят, попробуйте ещё раз.")
	}
}

func (r *Router) enqueue(chatID int64, job func()) bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if len(r.queues) == 0 {
		return false
	}
	select {
	case r.queues[shard(chatID, len(r.queues))] <- job:
		return true
	default:
		return false
	}
}

func shard(chatID int64, n int) int {
	h := fnv.New32a()
	var b [8]byte
	for i := range b {
		b[i] = byte(chatID >> (8 * i))
	}
	h.Write(b[:])
	return int(h.Sum32() % uint32(n))
}

func (r *Router) replyError(ctx context.Context, req *Request, err error) {
	var ue *UserError
	text := GenericFailure
	if errors.As(err, &ue) {
		text = ue.Msg
	}
	r.send(ctx, req.Chat, text)
}

func (r *Router) send(ctx context.Context, to kit.ChatTarget, text string) {
	if r.sender == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := r.sender.SendText(sctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
