package orchestrator

import (
	"sync"
	"testing"

	"golang.org/x/time/rate"
)

func TestRepoLimiter_SeparateBucketsPerKey(t *testing.T) {
	l := newRepoLimiter(rate.Every(1<<30), 1)

	if allowed, _ := l.Allow("acme/widgets"); !allowed {
		t.Fatal("first event should be admitted")
	}
	if allowed, _ := l.Allow("acme/widgets"); allowed {
		t.Fatal("second event should be dropped")
	}
	if allowed, _ := l.Allow("acme/gadgets"); !allowed {
		t.Error("another repository has its own bucket")
	}
	if allowed, _ := l.Allow("acme/widgets" + CommentChannelSuffix); !allowed {
		t.Error("the comment subchannel has its own bucket")
	}
}

func TestRepoLimiter_NotifyOncePerDropBurst(t *testing.T) {
	l := newRepoLimiter(rate.Every(1<<30), 1)

	l.Allow("acme/widgets")

	_, notify := l.Allow("acme/widgets")
	if !notify {
		t.Error("first drop should notify")
	}
	_, notify = l.Allow("acme/widgets")
	if notify {
		t.Error("subsequent drops should not re-notify")
	}
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("acme/widgets#1")
			defer km.Unlock("acme/widgets#1")

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
	if len(km.locks) != 0 {
		t.Errorf("lock table not drained: %d entries remain", len(km.locks))
	}
}

func TestKeyedMutex_DifferentKeysIndependent(t *testing.T) {
	km := newKeyedMutex()

	km.Lock("a")
	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()
	<-done // must not deadlock while "a" is held
	km.Unlock("a")
}
