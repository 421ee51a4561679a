package gate

import (
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fixkme/bitwheel/framework/config"
	"github.com/fixkme/bitwheel/timeout"
)

const start int64 = 1_000_000

func newTracker(t *testing.T, idle time.Duration) *IdleTracker {
	t.Helper()
	tr, err := NewIdleTracker(start, idle, 64)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestIdleResolution(t *testing.T) {
	cases := map[int64]int64{1: 1, 63: 1, 64: 1, 128: 2, 200: 2, 256: 4, 30_000: 256}
	for idle, want := range cases {
		if got := idleResolution(idle); got != want {
			t.Errorf("idleResolution(%d) = %d, want %d", idle, got, want)
		}
	}
}

func TestTouchAndExpire(t *testing.T) {
	tr := newTracker(t, time.Second)
	a, b := NewSession(nil), NewSession(nil)
	if err := tr.Touch(a, start); err != nil {
		t.Fatal(err)
	}
	if err := tr.Touch(b, start+500); err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d", tr.Len())
	}

	var expired []*Session
	collect := func(s *Session) { expired = append(expired, s) }
	if n := tr.Expire(start+900, collect); n != 0 {
		t.Fatalf("expired %d before the timeout", n)
	}
	// a的截止时间是start+1000, 要等到它所在tick结束
	tr.Expire(start+1000+tr.wheel.Resolution(), collect)
	if len(expired) != 1 || expired[0] != a {
		t.Fatalf("expired %v, want session a", expired)
	}
	if a.handle.Valid() {
		t.Fatal("expired session still holds a handle")
	}
	if tr.Len() != 1 {
		t.Fatalf("Len = %d", tr.Len())
	}
}

func TestTouchPostpones(t *testing.T) {
	tr := newTracker(t, time.Second)
	s := NewSession(nil)
	tr.Touch(s, start)
	tr.Touch(s, start+800)

	fail := func(s *Session) { t.Fatalf("session %s expired early", s.ID) }
	tr.Expire(start+1500, fail)
	n := tr.Expire(start+1800+tr.wheel.Resolution(), func(*Session) {})
	if n != 1 {
		t.Fatalf("expired %d", n)
	}
}

func TestForget(t *testing.T) {
	tr := newTracker(t, 100*time.Millisecond)
	s := NewSession(nil)
	tr.Touch(s, start)
	tr.Forget(s)
	tr.Forget(s)
	if s.handle != timeout.Expired || tr.Len() != 0 {
		t.Fatalf("handle=%d len=%d", s.handle, tr.Len())
	}
	tr.Expire(start+1000, func(s *Session) { t.Fatal("forgotten session expired") })
}

// A session whose handle was recycled by another session must not cancel it.
func TestForgetStaleHandle(t *testing.T) {
	tr := newTracker(t, 100*time.Millisecond)
	old := NewSession(nil)
	tr.Touch(old, start)

	var expired *Session
	tr.Expire(start+200, func(s *Session) { expired = s })
	if expired != old {
		t.Fatal("old session did not expire")
	}
	fresh := NewSession(nil)
	tr.Touch(fresh, start+200)
	tr.Forget(old)
	if tr.Len() != 1 || !fresh.handle.Valid() {
		t.Fatal("stale forget removed a live session")
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := newTracker(t, time.Second)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions := make([]*Session, 8)
			for i := range sessions {
				sessions[i] = NewSession(nil)
			}
			for i := 0; i < 2000; i++ {
				s := sessions[i%len(sessions)]
				if i%5 == 4 {
					tr.Forget(s)
					continue
				}
				tr.Touch(s, start+int64(i%50))
			}
		}()
	}
	wg.Wait()
	tr.Expire(start+5000, func(*Session) {})
	if tr.Len() != 0 {
		t.Fatalf("Len = %d", tr.Len())
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestServerEchoAndIdleClose(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a network server")
	}
	addr := freeAddr(t)
	conf := config.Default().GateConfig
	conf.GateAddr = fmt.Sprintf("tcp://%s", addr)
	conf.IdleTimeoutMs = 100
	conf.IdleSlots = 64

	s := NewServer(OptionsFromConfig(&conf))
	if err := s.OnInit(); err != nil {
		t.Fatal(err)
	}
	go s.Run()
	defer func() {
		s.Destroy()
		<-s.Done()
	}()

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		if conn, err = net.Dial("tcp", addr); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err = conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err = io.ReadFull(conn, buf); err != nil || string(buf) != "ping" {
		t.Fatalf("echo = %q, %v", buf, err)
	}

	// 保持空闲, 服务端应在超时后关闭连接
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err = conn.Read(buf); err != io.EOF {
		t.Fatalf("want EOF after idle timeout, got %v", err)
	}
}
