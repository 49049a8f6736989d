package logger

import (
	"sync"
)

// named holds component loggers registered by name, e.g. one per pipeline.
var named sync.Map

// Register stores l under name, replacing any previous entry.
func Register(name string, l *Logger) {
	named.Store(name, l)
}

// Get returns the logger registered under name. Unknown names get the global
// logger tagged with name as its component.
func Get(name string) *Logger {
	if v, ok := named.Load(name); ok {
		return v.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}
