// Package scripting runs user-supplied JavaScript that decides whether a
// player answers a drawn task correctly. It drives autoplay and simulation;
// a human-played session never calls it.
//
// A script defines outcome(turn) and returns either a boolean or a success
// probability in [0, 1]. Probabilities are resolved against the oracle's own
// seeded stream, never the session's, so scripted play keeps the session's
// random call order intact.
package scripting

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/lingo-ladders/internal/engine"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// LogEntry is a single log() line from the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Turn is what the script sees for one decision.
type Turn struct {
	Number      int
	PlayerIndex int
	PlayerName  string
	Position    int
	BoardSize   int
	Roll        int
	Task        tasks.TaskRecord
}

// ErrNoOutcome is returned when the script does not define outcome().
var ErrNoOutcome = errors.New("outcome() function is not defined")

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 250 * time.Millisecond
	maxLogs           = 500
)

// Oracle wraps a sandboxed goja runtime. It is safe for use by one goroutine
// at a time; the simulator creates one per worker.
type Oracle struct {
	runtime *goja.Runtime
	rng     *engine.Source
	mu      sync.Mutex

	logs   []LogEntry
	logsMu sync.Mutex

	callTimeout time.Duration
}

// NewOracle compiles source and checks that it defines outcome(). seed
// drives both probability resolution and Math.random inside the script.
func NewOracle(source string, seed uint32) (*Oracle, error) {
	o := &Oracle{
		runtime:     goja.New(),
		rng:         engine.NewSource(seed),
		callTimeout: scriptCallTimeout,
	}
	o.runtime.SetRandSource(o.rng.Next)
	o.injectGlobals()

	err := o.runWithTimeout(scriptInitTimeout, func() error {
		if _, err := o.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, ok := o.outcomeFunc(); !ok {
		return nil, ErrNoOutcome
	}
	return o, nil
}

func (o *Oracle) injectGlobals() {
	o.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		o.logsMu.Lock()
		if len(o.logs) >= maxLogs {
			o.logs = o.logs[1:]
		}
		o.logs = append(o.logs, LogEntry{Time: time.Now(), Message: strings.Join(parts, " ")})
		o.logsMu.Unlock()
		return goja.Undefined()
	})

	console := o.runtime.NewObject()
	console.Set("log", o.runtime.Get("log"))
	o.runtime.Set("console", console)

	types := o.runtime.NewObject()
	for _, t := range tasks.KnownTypes {
		types.Set(strings.ToUpper(string(t)), string(t))
	}
	o.runtime.Set("TYPES", types)

	// Block dangerous globals.
	o.runtime.Set("require", goja.Undefined())
	o.runtime.Set("fetch", goja.Undefined())
	o.runtime.Set("XMLHttpRequest", goja.Undefined())
	o.runtime.Set("eval", goja.Undefined())
	o.runtime.Set("Function", goja.Undefined())
}

func (o *Oracle) outcomeFunc() (goja.Callable, bool) {
	fn := o.runtime.Get("outcome")
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return nil, false
	}
	return goja.AssertFunction(fn)
}

// Decide calls outcome(turn) and resolves its answer to success or failure.
func (o *Oracle) Decide(t Turn) (bool, error) {
	var success bool
	err := o.runWithTimeout(o.callTimeout, func() error {
		o.mu.Lock()
		defer o.mu.Unlock()

		fn, ok := o.outcomeFunc()
		if !ok {
			return ErrNoOutcome
		}
		arg := o.runtime.ToValue(map[string]any{
			"turn":        t.Number,
			"playerIndex": t.PlayerIndex,
			"player":      t.PlayerName,
			"position":    t.Position,
			"boardSize":   t.BoardSize,
			"roll":        t.Roll,
			"remaining":   t.BoardSize - t.Position,
			"task": map[string]any{
				"id":     t.Task.ID,
				"type":   string(t.Task.Type),
				"level":  t.Task.Level,
				"focus":  t.Task.Focus,
				"prompt": t.Task.Prompt,
			},
		})
		res, err := fn(goja.Undefined(), arg)
		if err != nil {
			return fmt.Errorf("outcome() error: %w", err)
		}
		success, err = o.resolve(res)
		return err
	})
	return success, err
}

func (o *Oracle) resolve(v goja.Value) (bool, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false, fmt.Errorf("outcome() returned nothing; want boolean or probability")
	}
	switch x := v.Export().(type) {
	case bool:
		return x, nil
	case int64:
		return o.chance(float64(x))
	case float64:
		return o.chance(x)
	}
	return false, fmt.Errorf("outcome() returned %s; want boolean or probability", v.String())
}

func (o *Oracle) chance(p float64) (bool, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return false, fmt.Errorf("outcome() probability %v out of [0, 1]", p)
	}
	return o.rng.Next() < p, nil
}

// Logs returns a copy of the log buffer.
func (o *Oracle) Logs() []LogEntry {
	o.logsMu.Lock()
	defer o.logsMu.Unlock()
	out := make([]LogEntry, len(o.logs))
	copy(out, o.logs)
	return out
}

// ClearLogs empties the log buffer.
func (o *Oracle) ClearLogs() {
	o.logsMu.Lock()
	defer o.logsMu.Unlock()
	o.logs = o.logs[:0]
}

func (o *Oracle) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		// Interrupt a runaway script, then clear the flag so the runtime
		// can be called again.
		o.runtime.Interrupt("script execution timeout")
		select {
		case err := <-done:
			o.runtime.ClearInterrupt()
			if err != nil {
				return fmt.Errorf("script timed out: %w", err)
			}
			return fmt.Errorf("script timed out")
		case <-time.After(200 * time.Millisecond):
			return fmt.Errorf("script timed out")
		}
	}
}
