package reminder

import "time"

// Status labels shown in the framed chat output.
const (
	LabelAdded  = "Добавлено"
	LabelDone   = "Завершено"
	LabelListed = "В списке"

	NoticeEmpty = "Нет дел"
)

// Notifier is the outward sink of one conversation. Implementations must not
// block: the store calls them while holding its lock.
type Notifier interface {
	SendStatus(it Item, label string)
	SendNotice(text string)
}

// StatusText renders the framed block delivered by SendStatus.
func StatusText(it Item, label string, now time.Time, loc *time.Location) string {
	return "---- " + label + " ----\n" + it.Describe(now, loc)
}

type nopNotifier struct{}

func (nopNotifier) SendStatus(Item, string) {}
func (nopNotifier) SendNotice(string)       {}
