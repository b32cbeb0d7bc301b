package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperjump/kikoe/internal/synthesis"
)

// StreamSynthesis calls start and writes the text of the synthesis at key to w as it
// grows. If start reports that nothing was started, it waits for the key and writes the
// stored text instead. It returns the final state of the key and its error, if any.
func StreamSynthesis(ctx context.Context, w io.Writer, store *synthesis.Store, key synthesis.Key, start func() (bool, error)) (synthesis.State, error) {
	wrote := false
	st, started, err := store.Follow(ctx, key, start, func(delta string) {
		wrote = true
		_, _ = io.WriteString(w, delta)
	})
	if err != nil {
		return st, err
	}
	if !started {
		if st, err = store.Wait(ctx, key); err != nil {
			return st, err
		}
		fmt.Fprintln(w, st.Text)
		return st, st.Err
	}
	if st.Status == synthesis.StatusFailed {
		if wrote {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, st.Text)
		return st, st.Err
	}
	fmt.Fprintln(w)
	return st, nil
}
