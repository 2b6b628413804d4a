package shutdown

import (
	"container/heap"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/flanksource/commons/logger"
)

// Hooks run in ascending priority: running renders are cancelled before
// their staging files are removed and the trace registry is closed last.
const (
	PriorityRender   = 0
	PriorityDefault  = 100
	PriorityStaging  = 200
	PriorityRegistry = 300
)

var log = logger.GetLogger("shutdown")

type hook struct {
	label    string
	priority int
	seq      int
	fn       func()
	index    int
}

type hookHeap []*hook

func (h hookHeap) Len() int { return len(h) }
func (h hookHeap) Less(i, j int) bool {
	if h[i].priority == h[j].priority {
		return h[i].seq < h[j].seq
	}
	return h[i].priority < h[j].priority
}
func (h hookHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *hookHeap) Push(x interface{}) {
	item := x.(*hook)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *hookHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// Hooks is an ordered set of cleanup functions. Each hook runs at most
// once, even when Run is called again.
type Hooks struct {
	mu    sync.Mutex
	hooks hookHeap
	seq   int
}

// Add registers fn with PriorityDefault.
func (h *Hooks) Add(label string, fn func()) {
	h.AddWithPriority(label, PriorityDefault, fn)
}

// AddWithPriority registers fn. Hooks with equal priority run in
// registration order.
func (h *Hooks) AddWithPriority(label string, priority int, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	heap.Push(&h.hooks, &hook{label: label, priority: priority, seq: h.seq, fn: fn})
}

func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hooks.Len()
}

// Run executes and removes every registered hook. A panicking hook is
// logged and does not stop the others.
func (h *Hooks) Run() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hooks.Len() == 0 {
		return
	}
	log.Debugf("running %d shutdown hooks", h.hooks.Len())
	for h.hooks.Len() > 0 {
		hk := heap.Pop(&h.hooks).(*hook)
		log.Debugf("shutdown hook: %s (priority=%d)", hk.label, hk.priority)
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("panic in shutdown hook %s: %v", hk.label, r)
				}
			}()
			hk.fn()
		}()
	}
}

var global Hooks

// AddHook registers a process wide hook with default priority.
func AddHook(label string, fn func()) {
	global.Add(label, fn)
}

// AddHookWithPriority registers a process wide hook.
func AddHookWithPriority(label string, priority int, fn func()) {
	global.AddWithPriority(label, priority, fn)
}

// Shutdown runs the process wide hooks.
func Shutdown() {
	global.Run()
}

// NotifyContext returns a context cancelled by the first SIGINT or SIGTERM,
// after which the process wide hooks run. A second signal exits
// immediately. stop releases the signal handler.
func NotifyContext(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		select {
		case sig := <-sigs:
			fmt.Fprintf(os.Stderr, "\nReceived %s, cancelling renders (press Ctrl+C again to force exit)\n", sig)
			cancel()
			go func() {
				select {
				case <-sigs:
					fmt.Fprintln(os.Stderr, "Force exit")
					os.Exit(1)
				case <-done:
				}
			}()
			Shutdown()
		case <-done:
		}
	}()

	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			cancel()
		})
	}
}
