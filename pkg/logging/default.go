package logging

import "sync"

var (
	defaultMu     sync.RWMutex
	defaultRouter *Router
)

// Default returns the process-wide convenience router, creating a
// console-only one on first use. The core logic never depends on it;
// embedders that need testability construct explicit Routers.
func Default() *Router {
	defaultMu.RLock()
	r := defaultRouter
	defaultMu.RUnlock()
	if r != nil {
		return r
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRouter == nil {
		defaultRouter = New(DefaultConfig())
	}
	return defaultRouter
}

// SetDefault replaces the process-wide convenience router.
func SetDefault(r *Router) {
	defaultMu.Lock()
	defaultRouter = r
	defaultMu.Unlock()
}

// Temp logs to the default router.
func Temp(msg string, opts ...RecordOption) { Default().Temp(msg, opts...) }

// Debug logs to the default router.
func Debug(msg string, opts ...RecordOption) { Default().Debug(msg, opts...) }

// Info logs to the default router.
func Info(msg string, opts ...RecordOption) { Default().Info(msg, opts...) }

// Success logs to the default router.
func Success(msg string, opts ...RecordOption) { Default().Success(msg, opts...) }

// Warning logs to the default router.
func Warning(msg string, opts ...RecordOption) { Default().Warning(msg, opts...) }

// Error logs to the default router.
func Error(msg string, opts ...RecordOption) { Default().Error(msg, opts...) }

// Fatal logs to the default router.
func Fatal(msg string, opts ...RecordOption) { Default().Fatal(msg, opts...) }
