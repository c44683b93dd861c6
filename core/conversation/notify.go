package conversation

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type (
	Level string

	// Toast is an out-of-band notification.
	Toast struct {
		Level Level
		Title string
		Text  string
	}

	Notifier interface {
		Notify(toast Toast)
	}

	NotifierFunc func(toast Toast)
)

func (f NotifierFunc) Notify(toast Toast) { f(toast) }
