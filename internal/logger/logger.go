package logger

import (
	"go.uber.org/zap"
)

// Log defaults to a nop logger so library code and tests can log
// before InitLogger runs.
var Log = zap.NewNop()

func InitLogger() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	Log = l
}

func SyncLogger() {
	_ = Log.Sync()
}
