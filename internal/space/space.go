// Package space defines the hyperparameter neighborhood: the fixed set of named
// moves and the current configuration they are applied to.
package space

import (
	"fmt"

	"github.com/inantubek/rmnist/pkg/models"
	"github.com/inantubek/rmnist/pkg/utils"
)

// MoveSet is an ordered, fixed list of moves. Selection is uniform over the list.
type MoveSet struct {
	moves []Move
	index map[string]int
}

// NewMoveSet builds the move set described by steps
func NewMoveSet(steps Steps) (*MoveSet, error) {
	if err := steps.Validate(); err != nil {
		return nil, err
	}
	moves := append(rateMoves(steps), kernelMoves(steps)...)
	moves = append(moves, ensembleMoves(steps)...)
	return newMoveSet(moves)
}

// NewCustomMoveSet builds a move set from caller-supplied moves.
// Move names must be unique and non-empty.
func NewCustomMoveSet(moves ...Move) (*MoveSet, error) {
	return newMoveSet(moves)
}

func newMoveSet(moves []Move) (*MoveSet, error) {
	if len(moves) == 0 {
		return nil, fmt.Errorf("move set cannot be empty")
	}
	index := make(map[string]int, len(moves))
	for i, m := range moves {
		if m.Name == "" || m.Apply == nil {
			return nil, fmt.Errorf("move %d must have a name and an apply function", i)
		}
		if _, dup := index[m.Name]; dup {
			return nil, fmt.Errorf("duplicate move name: %s", m.Name)
		}
		index[m.Name] = i
	}
	return &MoveSet{moves: moves, index: index}, nil
}

// Len returns the number of moves
func (s *MoveSet) Len() int {
	return len(s.moves)
}

// Names returns move names in selection order
func (s *MoveSet) Names() []string {
	names := make([]string, len(s.moves))
	for i, m := range s.moves {
		names[i] = m.Name
	}
	return names
}

// ByName looks up a move
func (s *MoveSet) ByName(name string) (Move, bool) {
	i, ok := s.index[name]
	if !ok {
		return Move{}, false
	}
	return s.moves[i], true
}

// Pick draws a move uniformly at random
func (s *MoveSet) Pick(rng utils.Rand) Move {
	return s.moves[rng.Intn(len(s.moves))]
}

// Space pairs the current configuration with the move set.
type Space struct {
	current models.Configuration
	moves   *MoveSet
}

// New creates a space starting at initial
func New(initial models.Configuration, moves *MoveSet) (*Space, error) {
	if moves == nil {
		return nil, fmt.Errorf("move set is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial configuration: %w", err)
	}
	return &Space{current: initial, moves: moves}, nil
}

// Current returns the current configuration
func (s *Space) Current() models.Configuration {
	return s.current
}

// Moves returns the move set
func (s *Space) Moves() *MoveSet {
	return s.moves
}

// Propose draws a move and applies it to the current configuration.
// The current configuration is left untouched.
func (s *Space) Propose(rng utils.Rand) (Move, models.Configuration) {
	move := s.moves.Pick(rng)
	return move, Apply(move, s.current)
}

// MoveTo replaces the current configuration
func (s *Space) MoveTo(c models.Configuration) {
	s.current = c
}
