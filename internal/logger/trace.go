package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

var (
	traceMu        sync.Mutex
	traceLog       *log.Logger
	traceEachEpoch bool
)

// SetTraceWriter 指定训练轨迹输出位置；传 nil 关闭。
func SetTraceWriter(w io.Writer) {
	traceMu.Lock()
	defer traceMu.Unlock()
	if w == nil {
		traceLog = nil
		return
	}
	traceLog = log.New(w, "", log.LstdFlags)
}

// EnableEpochTrace 控制是否逐 epoch 记录损失。
func EnableEpochTrace(enabled bool) {
	traceMu.Lock()
	traceEachEpoch = enabled
	traceMu.Unlock()
}

func traceLogger() *log.Logger {
	traceMu.Lock()
	defer traceMu.Unlock()
	return traceLog
}

// TraceEpoch 记录一次训练 epoch 的损失值。
func TraceEpoch(runID, learner string, epoch int, loss float64) {
	traceMu.Lock()
	l := traceLog
	enabled := traceEachEpoch
	traceMu.Unlock()
	if l == nil || !enabled {
		return
	}
	l.Printf("[train][%s][%s] epoch=%d loss=%.6f", runID, learner, epoch, loss)
}

// TraceRun 记录 run 级别的里程碑（提交、完成、失败）。
func TraceRun(runID, stage string, fields map[string]any) {
	l := traceLogger()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[run]")
	b.WriteString("[")
	b.WriteString(runID)
	b.WriteString("]")
	b.WriteString("[")
	b.WriteString(stage)
	b.WriteString("]")
	for k, v := range fields {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(v))
	}
	l.Print(b.String())
}
