package synthesis

import "sync"

// maxQueuedChunks bounds how many chunk events wait for a slow subscriber. Started and
// terminal events are always queued.
const maxQueuedChunks = 256

type subscriber struct {
	out  chan Event
	wake chan struct{}
	done chan struct{}

	mu      sync.Mutex
	queue   []Event
	chunks  int
	stopped sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// push never blocks.
func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if ev.Kind == EventChunk {
		if s.chunks >= maxQueuedChunks {
			s.mu.Unlock()
			return
		}
		s.chunks++
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		if ev.Kind == EventChunk {
			s.chunks--
		}
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) stop() {
	s.stopped.Do(func() { close(s.done) })
}
