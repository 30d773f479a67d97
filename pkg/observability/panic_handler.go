package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with its stack trace. Call
// it in a defer statement:
//
//	defer observability.RecoverPanic(logger, "janitor sweep")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, then runs
// callback with the panic value. The callback only runs when a panic
// occurred.
//
//	defer observability.RecoverPanicWithCallback(logger, "after hook", func(r interface{}) {
//		metrics.RecordHookPanic(name)
//	})
func RecoverPanicWithCallback(logger *Logger, where string, callback func(r interface{})) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
		if callback != nil {
			callback(r)
		}
	}
}

// MustRecover converts a recovered value to an error, or nil when there was
// no panic
//
//	defer func() {
//		err = observability.MustRecover(recover())
//	}()
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}

func logPanic(logger *Logger, where string, r interface{}) {
	if logger == nil {
		logger = Nop()
	}
	logger.WithField("panic", fmt.Sprint(r)).
		WithField("stack", string(debug.Stack())).
		WithField("context", where).
		Error("PANIC recovered")
}
