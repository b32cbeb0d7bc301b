package synthesis

import "context"

// Follow calls start and, if it started a job for key, calls onDelta with each piece of
// new text until the key is terminal or reset. The deltas of a completed job always add
// up to its final text. For a failed job the error message is not passed to onDelta; it
// is the text of the returned state.
//
// started is false when start did not start anything; onDelta is not called then.
func (s *Store) Follow(ctx context.Context, key Key, start func() (bool, error), onDelta func(string)) (st State, started bool, err error) {
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	started, err = start()
	if err != nil || !started {
		return s.Get(key), started, err
	}
	done := s.doneChan(key)

	written := 0
	emit := func(text string) {
		if len(text) > written {
			onDelta(text[written:])
			written = len(text)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return s.Get(key), true, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Key == key && ev.Kind == EventChunk {
				emit(ev.Text)
			}
		case <-done:
			st = s.Get(key)
			if st.Status == StatusComplete {
				emit(st.Text)
			}
			return st, true, nil
		}
	}
}

// doneChan returns a channel closed when the current job of key ends or is reset.
func (s *Store) doneChan(key Key) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}
