package proc

import (
	"fmt"
	"sync"
	"time"

	"github.com/marselester/kperf/internal/perfevent"
	"github.com/marselester/kperf/internal/ring"
	"github.com/marselester/kperf/internal/pmutypes"
)

// NewProcessFunc is invoked once per newly observed thread, spec.md section
// 4.3 "Fork Observer": "a thread born after Session Open must still be
// picked up without the caller restarting the session."
type NewProcessFunc func(pid, tid int)

// Observer is the Fork Observer: a perf "software dummy" event opened with
// task=1, sample_id_all=1 so the kernel emits PERF_RECORD_FORK for every new
// thread under the monitored pid, even ones born after Session Open.
type Observer struct {
	ev     *perfevent.Event
	onFork NewProcessFunc

	pollInterval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// dummySpec is the software dummy event (SPEC_FULL.md section 3, grounded
// on original_source's pmu/dummy_event.cpp): type=PERF_TYPE_SOFTWARE,
// config=PERF_COUNT_SW_DUMMY, carries no counter value of its own.
func dummySpec() pmutypes.EventSpec {
	return pmutypes.EventSpec{
		Name:   "dummy",
		Kind:   pmutypes.KindSoftware,
		Type:   1, // PERF_TYPE_SOFTWARE
		Config: 9, // PERF_COUNT_SW_DUMMY
	}
}

// NewObserver opens the dummy event targeting pid (all threads, all CPUs)
// and prepares to watch for PERF_RECORD_FORK/COMM records.
func NewObserver(pid int, onFork NewProcessFunc) (*Observer, error) {
	ev, err := perfevent.Open(perfevent.OpenOptions{
		CPU:            -1,
		Tid:            pid,
		Spec:           dummySpec(),
		Task:           pmutypes.Sampling,
		GroupLeaderFd:  -1,
		Period:         1,
		IncludeNewFork: true,
		CgroupFd:       -1,
	})
	if err != nil {
		return nil, fmt.Errorf("proc: opening fork observer for pid %d: %w", pid, err)
	}
	return &Observer{
		ev:           ev,
		onFork:       onFork,
		pollInterval: 50 * time.Millisecond,
	}, nil
}

// Start enables the dummy event and launches the producer/consumer pair:
// one goroutine drains the ring on a timer, the other dispatches
// AddNewProcess callbacks, matching spec.md section 4.3's two-goroutine
// cooperative design.
func (o *Observer) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil
	}
	if err := o.ev.Enable(); err != nil {
		return err
	}

	o.stopCh = make(chan struct{})
	records := make(chan ring.Batch, 16)

	o.wg.Add(2)
	go o.produce(records)
	go o.consume(records)

	o.started = true
	return nil
}

func (o *Observer) produce(out chan<- ring.Batch) {
	defer o.wg.Done()
	defer close(out)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	mask := ring.SampleTypeMask{
		IP: true, Tid: true, Time: true, ID: true, Cpu: true,
		Period: true, Identifier: true, Raw: true,
	}

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			raw, err := o.ev.Ring.Drain()
			if err != nil {
				continue
			}
			if len(raw) == 0 {
				continue
			}
			select {
			case out <- ring.Decode(raw, mask):
			case <-o.stopCh:
				return
			}
		}
	}
}

func (o *Observer) consume(in <-chan ring.Batch) {
	defer o.wg.Done()
	for batch := range in {
		for _, f := range batch.Forks {
			o.onFork(int(f.Pid), int(f.Tid))
		}
	}
}

// Stop disables the dummy event, stops both goroutines, and closes the fd.
func (o *Observer) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return nil
	}
	close(o.stopCh)
	o.wg.Wait()
	o.started = false
	return o.ev.Close()
}
