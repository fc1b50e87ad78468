package typeinfo

// Catalog SQL (§6, bit-exact). TypeinfoQuery is tried first; if preparing
// it fails with SQLSTATE 42P01 (undefined table — pg_range doesn't exist
// before Postgres 9.2), TypeinfoFallbackQuery is used instead. Likewise
// EnumQuery falls back to EnumFallbackQuery on SQLSTATE 42703 (undefined
// column — pre-9.0 pg_enum has no enumsortorder). CompositeQuery has no
// version-dependent fallback.
const (
	TypeinfoQuery = `
SELECT t.typname, t.typtype, t.typelem, r.rngsubtype, t.typbasetype, n.nspname, t.typrelid
FROM pg_catalog.pg_type t
LEFT OUTER JOIN pg_catalog.pg_range r ON r.rngtypid = t.oid
INNER JOIN pg_catalog.pg_namespace n ON t.typnamespace = n.oid
WHERE t.oid = $1
`

	TypeinfoFallbackQuery = `
SELECT t.typname, t.typtype, t.typelem, NULL::OID, t.typbasetype, n.nspname, t.typrelid
FROM pg_catalog.pg_type t
INNER JOIN pg_catalog.pg_namespace n ON t.typnamespace = n.oid
WHERE t.oid = $1
`

	EnumQuery = `
SELECT enumlabel
FROM pg_catalog.pg_enum
WHERE enumtypid = $1
ORDER BY enumsortorder
`

	EnumFallbackQuery = `
SELECT enumlabel
FROM pg_catalog.pg_enum
WHERE enumtypid = $1
ORDER BY oid
`

	CompositeQuery = `SELECT attname, atttypid FROM pg_attribute WHERE attrelid=$1 AND NOT attisdropped AND attnum > 0 ORDER BY attnum`
)

// SQLSTATEs that trigger a version-fallback query (§4.4, §4.4.1).
const (
	SQLStateUndefinedTable  = "42P01"
	SQLStateUndefinedColumn = "42703"
)

// CatalogStatement names the six cached prepared statements a Client
// maintains for catalog introspection (§3 Client handle data model). The
// composite query has no fallback trigger defined by §4.4.2; the slot is
// kept for data-model fidelity and currently mirrors CatalogComposite.
type CatalogStatement int

const (
	CatalogTypeinfo CatalogStatement = iota
	CatalogTypeinfoFallback
	CatalogEnum
	CatalogEnumFallback
	CatalogComposite
	CatalogCompositeFallback
)
