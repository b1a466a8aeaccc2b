// Package idgen produces the identifiers shown to users: short random action ids that double
// as appeal references, and UUID commission ids. Both are checked against the store before use.
package idgen

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	actionIDBytes = 4
	maxAttempts   = 8
)

var ErrExhausted = errors.New("could not generate an unused id")

// ExistsFunc reports whether an id is already taken.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

type Generator struct {
	actionExists     ExistsFunc
	commissionExists ExistsFunc
	rand             io.Reader
}

func New(actionExists, commissionExists ExistsFunc) *Generator {
	return &Generator{actionExists: actionExists, commissionExists: commissionExists, rand: rand.Reader}
}

// WithRandom swaps the entropy source. Used by tests to force collisions.
func (g *Generator) WithRandom(r io.Reader) *Generator {
	g.rand = r
	return g
}

// ActionID returns an 8 character hex token not yet present in the action log.
func (g *Generator) ActionID(ctx context.Context) (string, error) {
	return g.draw(ctx, g.actionExists, func() (string, error) {
		b := make([]byte, actionIDBytes)
		if _, err := io.ReadFull(g.rand, b); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		return hex.EncodeToString(b), nil
	})
}

func (g *Generator) CommissionID(ctx context.Context) (string, error) {
	return g.draw(ctx, g.commissionExists, func() (string, error) {
		id, err := uuid.NewRandomFromReader(g.rand)
		if err != nil {
			return "", fmt.Errorf("new uuid: %w", err)
		}
		return id.String(), nil
	})
}

func (g *Generator) draw(ctx context.Context, exists ExistsFunc, next func() (string, error)) (string, error) {
	for range maxAttempts {
		id, err := next()
		if err != nil {
			return "", err
		}
		if exists == nil {
			return id, nil
		}
		taken, err := exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check id %s: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrExhausted
}
