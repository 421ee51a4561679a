// Package gate is an echo server on gnet that closes connections which stay
// idle longer than the configured timeout. Idle deadlines live in a bitset
// timing wheel and are re-armed on every read.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/fixkme/bitwheel/errs"
	"github.com/fixkme/bitwheel/framework/config"
	"github.com/fixkme/bitwheel/mlog"
	"github.com/fixkme/bitwheel/util"
)

type ServerOptions struct {
	gnet.Options
	Addr        string //"tcp://127.0.0.1:2333"
	IdleTimeout time.Duration
	IdleSlots   int
	NowFunc     func() int64 // 毫秒时间戳, 默认util.NowMs
}

func OptionsFromConfig(conf *config.GateConfig) *ServerOptions {
	return &ServerOptions{
		Options:     gnet.Options{Multicore: conf.GateMulticore},
		Addr:        conf.GateAddr,
		IdleTimeout: time.Duration(conf.IdleTimeoutMs) * time.Millisecond,
		IdleSlots:   conf.IdleSlots,
	}
}

type Server struct {
	gnet.BuiltinEventEngine
	opt     *ServerOptions
	tracker *IdleTracker
	mu      sync.Mutex
	eng     gnet.Engine
	booted  bool
	done    chan struct{}
}

func NewServer(opt *ServerOptions) *Server {
	if opt.NowFunc == nil {
		opt.NowFunc = util.NowMs
	}
	return &Server{opt: opt, done: make(chan struct{})}
}

func (s *Server) Name() string {
	return "gate"
}

func (s *Server) OnInit() error {
	if s.opt.IdleTimeout < time.Millisecond {
		return errs.InvalidConfig.Printf("idle timeout %v is too small", s.opt.IdleTimeout)
	}
	t, err := NewIdleTracker(s.opt.NowFunc(), s.opt.IdleTimeout, s.opt.IdleSlots)
	if err != nil {
		return err
	}
	s.tracker = t
	return nil
}

// Run 阻塞到引擎停止
func (s *Server) Run() {
	defer close(s.done)
	opt := s.opt.Options
	opt.Ticker = true
	mlog.Infof("gate listening on %s, idle timeout %v", s.opt.Addr, s.opt.IdleTimeout)
	if err := gnet.Run(s, s.opt.Addr, gnet.WithOptions(opt)); err != nil {
		mlog.Errorf("gate run error: %v", err)
	}
}

func (s *Server) Destroy() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		mlog.Warnf("gate stop: %v", err)
	}
}

// Stop 停止引擎, 未启动时直接返回
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	eng, booted := s.eng, s.booted
	s.mu.Unlock()
	if !booted {
		return nil
	}
	return eng.Stop(ctx)
}

// Done 在Run返回后关闭
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// 在gnet.Run协程里被调用
func (s *Server) OnBoot(eng gnet.Engine) (action gnet.Action) {
	s.mu.Lock()
	s.eng, s.booted = eng, true
	s.mu.Unlock()
	return
}

func (s *Server) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	sess := NewSession(c)
	c.SetContext(sess)
	if err := s.tracker.Touch(sess, s.opt.NowFunc()); err != nil {
		mlog.Warnf("gate session %s from %s rejected: %v", sess.ID, c.RemoteAddr(), err)
		return nil, gnet.Close
	}
	mlog.Debugf("gate session %s opened from %s", sess.ID, c.RemoteAddr())
	return
}

func (s *Server) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	if sess, ok := c.Context().(*Session); ok {
		s.tracker.Forget(sess)
		mlog.Debugf("gate session %s closed: %v", sess.ID, err)
	}
	return
}

func (s *Server) OnTraffic(c gnet.Conn) (action gnet.Action) {
	sess, ok := c.Context().(*Session)
	if !ok {
		return gnet.Close
	}
	buf, err := c.Next(-1)
	if err != nil {
		return gnet.Close
	}
	if _, err = c.Write(buf); err != nil {
		return gnet.Close
	}
	if err = s.tracker.Touch(sess, s.opt.NowFunc()); err != nil {
		mlog.Warnf("gate session %s touch failed: %v", sess.ID, err)
		return gnet.Close
	}
	return
}

// OnTick 在独立协程里调用, 关闭空闲连接
func (s *Server) OnTick() (delay time.Duration, action gnet.Action) {
	s.tracker.Expire(s.opt.NowFunc(), func(sess *Session) {
		mlog.Debugf("gate session %s idle, closing", sess.ID)
		if err := sess.Conn.CloseWithCallback(nil); err != nil {
			mlog.Warnf("gate close session %s: %v", sess.ID, err)
		}
	})
	return s.tracker.Resolution(), gnet.None
}
