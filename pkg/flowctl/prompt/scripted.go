package prompt

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoAnswer is returned by Scripted when its answers are exhausted.
var ErrNoAnswer = errors.New("no scripted answer left")

// Scripted replays canned answers in order. It backs non-terminal tests.
type Scripted struct {
	mu      sync.Mutex
	answers []any
	// Asked records the title of every prompt shown.
	Asked []string
}

// NewScripted returns a prompter answering with the given values. Strings
// answer ConfirmToken, Input and Select; bools answer Confirm; string slices
// answer MultiSelect and Lines; errors are returned as-is.
func NewScripted(answers ...any) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) next(title string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Asked = append(s.Asked, title)
	if len(s.answers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAnswer, title)
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	if err, ok := answer.(error); ok {
		return nil, err
	}
	return answer, nil
}

// Remaining is the number of unused answers.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

func nextAs[T any](s *Scripted, title string) (T, error) {
	var zero T
	answer, err := s.next(title)
	if err != nil {
		return zero, err
	}
	value, ok := answer.(T)
	if !ok {
		return zero, fmt.Errorf("scripted answer for %q has type %T, want %T", title, answer, zero)
	}
	return value, nil
}

func (s *Scripted) ConfirmToken(title, _ string, token string) (bool, error) {
	typed, err := nextAs[string](s, title)
	if err != nil {
		return false, err
	}
	return typed == token, nil
}

func (s *Scripted) Confirm(title string) (bool, error) {
	return nextAs[bool](s, title)
}

func (s *Scripted) Input(title, _ string, validate func(string) error) (string, error) {
	value, err := nextAs[string](s, title)
	if err != nil {
		return "", err
	}
	if validate != nil {
		if err := validate(value); err != nil {
			return "", err
		}
	}
	return value, nil
}

func (s *Scripted) Select(title string, _ []Choice) (string, error) {
	return nextAs[string](s, title)
}

func (s *Scripted) MultiSelect(title string, _ []Choice) ([]string, error) {
	return nextAs[[]string](s, title)
}

func (s *Scripted) Lines(title, _ string) ([]string, error) {
	return nextAs[[]string](s, title)
}
