// Package typeinfo implements the recursive catalog-driven type-resolution
// engine (§4.4): given an OID, classify it against PostgreSQL's built-in
// types, the per-connection cache, or (recursively) catalog queries for
// enums, domains, arrays, composites, and ranges.
//
// The package never touches a socket. It is handed a Backend — whatever
// already knows how to prepare/execute the six catalog queries over a live
// connection — and drives the resolution algorithm against it.
package typeinfo

import (
	"context"
	"fmt"
	"sync"
)

// Kind tags which shape a resolved Type takes (§3 Type descriptor).
type Kind int

const (
	KindSimple Kind = iota
	KindPseudo
	KindArray
	KindDomain
	KindEnum
	KindComposite
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindPseudo:
		return "pseudo"
	case KindArray:
		return "array"
	case KindDomain:
		return "domain"
	case KindEnum:
		return "enum"
	case KindComposite:
		return "composite"
	case KindRange:
		return "range"
	default:
		return "unknown"
	}
}

// Field is one column of a Composite type.
type Field struct {
	Name string
	Type *Type
}

// Type is the resolved descriptor for a PostgreSQL type (§3). Only the
// fields relevant to Kind are populated: Elem for Array/Domain/Range,
// Variants for Enum, Fields for Composite.
type Type struct {
	OID      uint32
	Name     string
	Schema   string
	Kind     Kind
	Elem     *Type
	Variants []string
	Fields   []Field
}

// TypeinfoRow is one row of the pg_type/pg_range catalog join (§4.4 step 4).
type TypeinfoRow struct {
	Typname       string
	Typtype       byte
	Typelem       uint32
	HasRngSubtype bool
	RngSubtype    uint32
	Typbasetype   uint32
	Nspname       string
	Typrelid      uint32
}

// CompositeAttr is one non-dropped, non-system column of a composite type
// (§4.4.2).
type CompositeAttr struct {
	Name    string
	TypeOID uint32
}

// Backend is what the resolver needs from the live connection: the
// ability to run the three catalog lookups (with the version-fallback
// SQLSTATE handling of §4.4/§4.4.1 hidden behind it, since only the
// Client owns the prepared-statement cache for these queries).
type Backend interface {
	FetchTypeinfo(ctx context.Context, oid uint32) (TypeinfoRow, error)
	FetchEnumLabels(ctx context.Context, oid uint32) ([]string, error)
	FetchCompositeFields(ctx context.Context, relid uint32) ([]CompositeAttr, error)
}

// Resolver drives the recursive algorithm of §4.4 against a Backend,
// keeping a per-connection write-through cache and the built-in table.
type Resolver struct {
	backend  Backend
	builtins map[uint32]*Type
	cache    *cache

	mu       sync.Mutex
	inFlight map[uint32]bool
}

// NewResolver constructs a Resolver over backend, pre-seeded with the
// well-known built-in OID table.
func NewResolver(backend Backend) *Resolver {
	return &Resolver{
		backend:  backend,
		builtins: builtinTypes,
		cache:    newCache(),
		inFlight: make(map[uint32]bool),
	}
}

// CacheSize reports how many non-built-in OIDs have been resolved and
// cached on this connection (used for metrics/debug introspection).
func (r *Resolver) CacheSize() int {
	return r.cache.size()
}

// Resolve implements §4.4 steps 1–6. Recursion happens via nested calls to
// Resolve, guarded by an in-flight set so a malformed catalog (a type that
// refers back to itself) degrades to Simple instead of deadlocking or
// recursing forever (step 6's cycle-safety requirement).
func (r *Resolver) Resolve(ctx context.Context, oid uint32) (*Type, error) {
	if t, ok := r.builtins[oid]; ok {
		return t, nil
	}
	if t, ok := r.cache.get(oid); ok {
		return t, nil
	}

	r.mu.Lock()
	if r.inFlight[oid] {
		r.mu.Unlock()
		return &Type{OID: oid, Kind: KindSimple}, nil
	}
	r.inFlight[oid] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inFlight, oid)
		r.mu.Unlock()
	}()

	row, err := r.backend.FetchTypeinfo(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("resolving type oid=%d: %w", oid, err)
	}

	t := &Type{OID: oid, Name: row.Typname, Schema: row.Nspname}

	switch {
	case row.Typtype == 'e':
		labels, err := r.backend.FetchEnumLabels(ctx, oid)
		if err != nil {
			return nil, fmt.Errorf("resolving enum variants for oid=%d: %w", oid, err)
		}
		t.Kind = KindEnum
		t.Variants = labels

	case row.Typtype == 'p':
		t.Kind = KindPseudo

	case row.Typbasetype != 0:
		inner, err := r.Resolve(ctx, row.Typbasetype)
		if err != nil {
			return nil, err
		}
		t.Kind = KindDomain
		t.Elem = inner

	case row.Typelem != 0:
		inner, err := r.Resolve(ctx, row.Typelem)
		if err != nil {
			return nil, err
		}
		t.Kind = KindArray
		t.Elem = inner

	case row.Typrelid != 0:
		attrs, err := r.backend.FetchCompositeFields(ctx, row.Typrelid)
		if err != nil {
			return nil, fmt.Errorf("resolving composite fields for oid=%d: %w", oid, err)
		}
		fields := make([]Field, 0, len(attrs))
		for _, a := range attrs {
			ft, err := r.Resolve(ctx, a.TypeOID)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: a.Name, Type: ft})
		}
		t.Kind = KindComposite
		t.Fields = fields

	case row.HasRngSubtype:
		inner, err := r.Resolve(ctx, row.RngSubtype)
		if err != nil {
			return nil, err
		}
		t.Kind = KindRange
		t.Elem = inner

	default:
		t.Kind = KindSimple
	}

	r.cache.put(oid, t)
	return t, nil
}
