package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed fighters.json
var defaultData []byte

var ErrUnknownFighter = errors.New("fighter not in catalog")
var ErrStatsMismatch = errors.New("fighter does not match catalog entry")

type rawMove struct {
	Name     string          `json:"name"`
	Category engine.Category `json:"category"`
	Power    int             `json:"power"`
}

type rawFighter struct {
	Name           string    `json:"name"`
	HP             int       `json:"hp"`
	Attack         int       `json:"attack"`
	Defense        int       `json:"defense"`
	SpecialAttack  int       `json:"specialAttack"`
	SpecialDefense int       `json:"specialDefense"`
	Speed          int       `json:"speed"`
	Moves          []rawMove `json:"moves"`
}

// Catalog is the set of fighters players may build a team from. It is read-only after Load.
// Entries are keyed by slug, so "Mr. Mime", "mr mime" and "MR-MIME" name the same fighter.
type Catalog struct {
	byKey map[string]engine.Fighter
	order []string
}

func Load(r io.Reader) (*Catalog, error) {
	var raw []rawFighter
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	title := cases.Title(language.English)
	c := &Catalog{byKey: make(map[string]engine.Fighter, len(raw))}
	for _, rf := range raw {
		name := strings.ToLower(strings.TrimSpace(rf.Name))
		key := slug.Make(name)
		if key == "" {
			return nil, errors.New("catalog entry without a name")
		}
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", rf.Name)
		}

		f := engine.Fighter{
			Name:           title.String(name),
			MaxHealth:      rf.HP,
			Health:         rf.HP,
			Attack:         rf.Attack,
			SpecialAttack:  rf.SpecialAttack,
			Defense:        rf.Defense,
			SpecialDefense: rf.SpecialDefense,
			Speed:          rf.Speed,
		}
		for _, m := range rf.Moves {
			f.Moves = append(f.Moves, engine.Move{Name: title.String(m.Name), Category: m.Category, Power: m.Power})
		}
		if err := engine.ValidateRoster(engine.Rules{MaxTeamSize: 1, MaxMoves: len(f.Moves)}, []engine.Fighter{f}); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", rf.Name, err)
		}

		c.byKey[key] = f
		c.order = append(c.order, key)
	}
	return c, nil
}

func LoadFile(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Load(file)
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultData))
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

func (c *Catalog) Len() int { return len(c.order) }

// All returns every fighter in file order. Callers get their own copies.
func (c *Catalog) All() []engine.Fighter {
	out := make([]engine.Fighter, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, clone(c.byKey[key]))
	}
	return out
}

func (c *Catalog) Lookup(name string) (engine.Fighter, bool) {
	f, ok := c.byKey[slug.Make(name)]
	if !ok {
		return engine.Fighter{}, false
	}
	return clone(f), true
}

// Options draws n distinct fighters for a seat to choose from. n <= 0 or n >= Len returns everything.
// A nil rng uses the shared source, which is safe across match goroutines.
func (c *Catalog) Options(n int, rng *rand.Rand) []engine.Fighter {
	if n <= 0 || n >= len(c.order) {
		return c.All()
	}
	var perm []int
	if rng == nil {
		perm = rand.Perm(len(c.order))[:n]
	} else {
		perm = rng.Perm(len(c.order))[:n]
	}
	out := make([]engine.Fighter, 0, n)
	for _, i := range perm {
		out = append(out, clone(c.byKey[c.order[i]]))
	}
	return out
}

// Verify rejects any fighter whose stats or moves differ from its catalog entry.
func (c *Catalog) Verify(fighters []engine.Fighter) error {
	for _, f := range fighters {
		want, ok := c.Lookup(f.Name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFighter, f.Name)
		}
		if !sameFighter(want, f) {
			return fmt.Errorf("%w: %s", ErrStatsMismatch, f.Name)
		}
	}
	return nil
}

func sameFighter(a, b engine.Fighter) bool {
	if a.MaxHealth != b.MaxHealth || a.Attack != b.Attack || a.SpecialAttack != b.SpecialAttack ||
		a.Defense != b.Defense || a.SpecialDefense != b.SpecialDefense || a.Speed != b.Speed {
		return false
	}
	// a team may carry a subset of the entry's moves
	for _, m := range b.Moves {
		if !slices.Contains(a.Moves, m) {
			return false
		}
	}
	return true
}

func clone(f engine.Fighter) engine.Fighter {
	f.Moves = slices.Clone(f.Moves)
	return f
}
