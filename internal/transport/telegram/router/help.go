package router

import (
	"context"
	"strings"
)

const helpIntro = "Я напоминаю о делах. Время можно писать словами (\"через 2 часа\", \"завтра в 9\") или как 10m, 18:30.\n" +
	"Запись без времени сохраняется в списке, но не напоминает."

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	return req.Reply(ctx, helpText(r.Commands()))
}

func helpText(cmds []Command) string {
	var b strings.Builder
	b.WriteString(helpIntro)
	b.WriteString("\n")
	for _, c := range cmds {
		if c.Name == "help" {
			continue
		}
		b.WriteString("\n")
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString(usage)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		if len(c.Aliases) > 0 {
			b.WriteString("\n  также: /")
			b.WriteString(strings.Join(c.Aliases, ", /"))
		}
	}
	return b.String()
}
