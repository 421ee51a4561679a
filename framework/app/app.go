package app

import (
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fixkme/bitwheel/errs"
	"github.com/fixkme/bitwheel/mlog"
)

// 节点全局状态
const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在初始化中
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

var defaultApp = New()

type Module interface {
	OnInit() error // 初始化
	Destroy()      // 销毁, 需要让Run返回
	Run()          // 启动, 阻塞到Destroy
	Name() string  // 名字
}

func DefaultApp() *App {
	return defaultApp
}

// App 管理模块生命周期: 按顺序初始化, 并发运行, 逆序销毁
type App struct {
	mods  []Module
	state atomic.Int32
	sig   chan os.Signal
	wg    sync.WaitGroup
}

func New() *App {
	return &App{sig: make(chan os.Signal, 1)}
}

func (app *App) GetState() int32 {
	return app.state.Load()
}

// Start 初始化并启动模块, 任一模块初始化失败时销毁已初始化的模块
func (app *App) Start(mods ...Module) error {
	if !app.state.CompareAndSwap(AppStateNone, AppStateInit) {
		return errs.Unknown.Printf("app mods cannot start twice")
	}
	mlog.Info("app starting up")
	for i, m := range mods {
		if err := m.OnInit(); err != nil {
			mlog.Errorf("module %s init error %v", m.Name(), err)
			for j := i - 1; j >= 0; j-- {
				destroy(mods[j])
			}
			app.state.Store(AppStateNone)
			return errs.WrapError(err)
		}
		app.mods = append(app.mods, m)
	}
	for _, m := range app.mods {
		app.wg.Add(1)
		go run(m, &app.wg)
	}
	app.state.Store(AppStateRun)
	mlog.Info("app started")
	return nil
}

func (app *App) shutdown() {
	if !app.state.CompareAndSwap(AppStateRun, AppStateStop) {
		return
	}
	mlog.Info("app stop begin")
	// 先进后出
	for i := len(app.mods) - 1; i >= 0; i-- {
		m := app.mods[i]
		mlog.Infof("app stop module %s", m.Name())
		destroy(m)
	}
	app.wg.Wait()
	app.mods = nil
	app.state.Store(AppStateNone)
	mlog.Info("app stopped")
}

func run(m Module, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module run panic: %v\n%s", m.Name(), r, debug.Stack())
		}
	}()
	m.Run()
}

func destroy(m Module) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module destroy panic: %v\n%s", m.Name(), r, debug.Stack())
		}
	}()
	m.Destroy()
}

// Run 启动模块并阻塞到收到退出信号或Stop, SIGHUP被忽略
func (app *App) Run(mods ...Module) error {
	if err := app.Start(mods...); err != nil {
		return err
	}
	signal.Notify(app.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.sig)
	for {
		sig := <-app.sig
		mlog.Infof("server closing down (signal: %v)", sig)
		if sig != syscall.SIGHUP {
			break
		}
	}
	app.shutdown()
	return nil
}

// Stop 通知Run退出, 不等待
func (app *App) Stop() {
	select {
	case app.sig <- syscall.SIGTERM:
	default:
	}
}
