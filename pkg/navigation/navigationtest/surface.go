package navigationtest

import (
	"context"
	"strconv"
	"sync"

	"ex-paimon/pkg/navigation"
)

// Surface records posts and edits in memory.
type Surface struct {
	mu      sync.Mutex
	scope   string
	next    int
	posts   []navigation.Page
	edits   []Edit
	editErr error
}

// Edit is one recorded message edit.
type Edit struct {
	Key  navigation.MessageKey
	Page navigation.Page
}

// NewSurface returns a surface issuing message keys under scope.
func NewSurface(scope string) *Surface {
	return &Surface{scope: scope}
}

// Post records page and returns a fresh key in conversation "chat".
func (s *Surface) Post(_ context.Context, page navigation.Page) (navigation.MessageKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	s.posts = append(s.posts, page)
	return navigation.MessageKey{
		Scope:        s.scope,
		Conversation: "chat",
		Message:      strconv.Itoa(s.next),
	}, nil
}

// Edit records the edit or returns the error set by FailEdits.
func (s *Surface) Edit(_ context.Context, key navigation.MessageKey, page navigation.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editErr != nil {
		return s.editErr
	}
	s.edits = append(s.edits, Edit{Key: key, Page: page})
	return nil
}

// FailEdits makes every following edit return err. Nil restores success.
func (s *Surface) FailEdits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.editErr = err
}

// Posts returns the recorded posts.
func (s *Surface) Posts() []navigation.Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]navigation.Page(nil), s.posts...)
}

// Edits returns the recorded edits.
func (s *Surface) Edits() []Edit {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Edit(nil), s.edits...)
}
