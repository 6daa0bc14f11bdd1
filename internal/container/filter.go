// Package container provides the row-visibility filters injected into every
// base relation that scans a container-scoped table.
package container

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Filter produces the predicate restricting a base table, scanned under
// tableAlias, to the visible containers. A nil predicate means no
// restriction. Both arguments are already legal SQL identifiers.
type Filter interface {
	Predicate(tableAlias, column string) (sq.Sqlizer, error)
	Type() Type
}

type Type string

const (
	TypeCurrent              Type = "Current"
	TypeCurrentAndSubfolders Type = "CurrentAndSubfolders"
	TypeFolders              Type = "Folders"
	TypeAllFolders           Type = "AllFolders"
)

func qualify(tableAlias, column string) string {
	if tableAlias == "" {
		return column
	}
	return tableAlias + "." + column
}

// Current restricts rows to a single container.
type Current struct {
	ID uuid.UUID
}

func (f Current) Type() Type { return TypeCurrent }

func (f Current) Predicate(tableAlias, column string) (sq.Sqlizer, error) {
	if f.ID == uuid.Nil {
		return nil, fmt.Errorf("current container filter: no container id")
	}
	return sq.Eq{qualify(tableAlias, column): f.ID.String()}, nil
}

// Folders restricts rows to an explicit, pre-resolved set of containers.
// An empty set matches nothing.
type Folders struct {
	IDs  []uuid.UUID
	Kind Type
}

func (f Folders) Type() Type {
	if f.Kind != "" {
		return f.Kind
	}
	return TypeFolders
}

func (f Folders) Predicate(tableAlias, column string) (sq.Sqlizer, error) {
	if len(f.IDs) == 0 {
		return sq.Expr("1 = 0"), nil
	}
	ids := make([]string, 0, len(f.IDs))
	seen := make(map[uuid.UUID]bool, len(f.IDs))
	for _, id := range f.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id.String())
	}
	col := qualify(tableAlias, column)
	if len(ids) == 1 {
		return sq.Eq{col: ids[0]}, nil
	}
	return sq.Eq{col: ids}, nil
}

// AllFolders applies no restriction.
type AllFolders struct{}

func (AllFolders) Type() Type { return TypeAllFolders }

func (AllFolders) Predicate(string, string) (sq.Sqlizer, error) { return nil, nil }

// New builds a filter by type name. subfolders lists the containers below
// current that the caller may read.
func New(kind string, current uuid.UUID, subfolders []uuid.UUID) (Filter, error) {
	switch Type(kind) {
	case "", TypeCurrent:
		return Current{ID: current}, nil
	case TypeCurrentAndSubfolders:
		ids := append([]uuid.UUID{current}, subfolders...)
		return Folders{IDs: ids, Kind: TypeCurrentAndSubfolders}, nil
	case TypeFolders:
		return Folders{IDs: subfolders}, nil
	case TypeAllFolders:
		return AllFolders{}, nil
	}
	return nil, fmt.Errorf("unknown container filter %q", kind)
}

// ParseIDs parses container ids.
func ParseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("container id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}
