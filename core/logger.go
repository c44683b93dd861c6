package core

type (
	// Person identifies who a log entry is about.
	Person struct {
		ID       string
		Username string
		Email    string
	}

	// Logger is any leveled logger.
	// args may carry errors, map[string]interface{} extras and at most one Person.
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}
)
