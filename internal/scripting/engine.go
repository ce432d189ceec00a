package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/l1jgo/cartgrid/internal/core/event"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Hook names a script may define as globals.
const (
	HookZoneChanged   = "on_zone_changed"
	HookObjectRemoved = "on_object_removed"
)

// Engine wraps a single gopher-lua VM running operator hooks.
// Single-goroutine access only (game loop).
type Engine struct {
	vm     *lua.LState
	log    *zap.Logger
	failed int
}

// NewEngine creates a Lua engine and loads every script under scriptsDir/hooks.
// A missing directory yields an engine with no hooks.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	e.registerAPI()

	if err := e.loadDir(filepath.Join(scriptsDir, "hooks")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load hook scripts: %w", err)
	}
	return e, nil
}

// registerAPI exposes logging to scripts as log_info(msg) and log_warn(msg).
func (e *Engine) registerAPI() {
	e.vm.SetGlobal("log_info", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Info("lua", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	e.vm.SetGlobal("log_warn", e.vm.NewFunction(func(L *lua.LState) int {
		e.log.Warn("lua", zap.String("msg", L.CheckString(1)))
		return 0
	}))
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// HasHook reports whether a script defined the named global function.
func (e *Engine) HasHook(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Failures counts hook calls that raised a Lua error.
func (e *Engine) Failures() int { return e.failed }

// OnZoneChanged calls on_zone_changed(ev) with
// ev = {grid, object, from, to, x, y, z}.
func (e *Engine) OnZoneChanged(ev event.ZoneChanged) {
	if !e.HasHook(HookZoneChanged) {
		return
	}
	t := e.vm.NewTable()
	t.RawSetString("grid", lua.LNumber(ev.GridID))
	t.RawSetString("object", lua.LNumber(ev.ObjectID))
	t.RawSetString("from", lua.LNumber(ev.From))
	t.RawSetString("to", lua.LNumber(ev.To))
	t.RawSetString("x", lua.LNumber(ev.Pos.X))
	t.RawSetString("y", lua.LNumber(ev.Pos.Y))
	t.RawSetString("z", lua.LNumber(ev.Pos.Z))
	e.call(HookZoneChanged, t)
}

// OnObjectRemoved calls on_object_removed(ev) with ev = {grid, object, zone}.
func (e *Engine) OnObjectRemoved(ev event.ObjectRemoved) {
	if !e.HasHook(HookObjectRemoved) {
		return
	}
	t := e.vm.NewTable()
	t.RawSetString("grid", lua.LNumber(ev.GridID))
	t.RawSetString("object", lua.LNumber(ev.ObjectID))
	t.RawSetString("zone", lua.LNumber(ev.LastZone))
	e.call(HookObjectRemoved, t)
}

// call runs a hook. Script errors are logged, never propagated.
func (e *Engine) call(name string, arg lua.LValue) {
	err := e.vm.CallByParam(lua.P{
		Fn:      e.vm.GetGlobal(name),
		NRet:    0,
		Protect: true,
	}, arg)
	if err != nil {
		e.failed++
		e.log.Error("lua hook failed", zap.String("hook", name), zap.Error(err))
	}
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
