package typeinfo

// builtinTypes is the fixed table of well-known PostgreSQL built-in type
// OIDs (§4.4 step 1) — resolving one of these never costs a catalog round
// trip. OID values are PostgreSQL's stable, documented built-ins (the same
// set jackc/pgx's pgtype package hard-codes); array builtins are Kind
// Array wrapping the scalar element, not Simple, since a well-known array
// OID still has element-type structure callers may want.
var builtinTypes = buildBuiltins()

type builtinSpec struct {
	oid  uint32
	name string
	elem uint32 // non-zero for the well-known array OIDs
}

var builtinSpecs = []builtinSpec{
	{16, "bool", 0},
	{17, "bytea", 0},
	{18, "char", 0},
	{19, "name", 0},
	{20, "int8", 0},
	{21, "int2", 0},
	{23, "int4", 0},
	{24, "regproc", 0},
	{25, "text", 0},
	{26, "oid", 0},
	{114, "json", 0},
	{142, "xml", 0},
	{600, "point", 0},
	{650, "cidr", 0},
	{700, "float4", 0},
	{701, "float8", 0},
	{705, "unknown", 0},
	{790, "money", 0},
	{829, "macaddr", 0},
	{869, "inet", 0},
	{1000, "_bool", 16},
	{1005, "_int2", 21},
	{1007, "_int4", 23},
	{1009, "_text", 25},
	{1014, "_bpchar", 1042},
	{1015, "_varchar", 1043},
	{1016, "_int8", 20},
	{1021, "_float4", 700},
	{1022, "_float8", 701},
	{1042, "bpchar", 0},
	{1043, "varchar", 0},
	{1082, "date", 0},
	{1083, "time", 0},
	{1114, "timestamp", 0},
	{1115, "_timestamp", 1114},
	{1182, "_date", 1082},
	{1184, "timestamptz", 0},
	{1185, "_timestamptz", 1184},
	{1186, "interval", 0},
	{1231, "_numeric", 1700},
	{1560, "bit", 0},
	{1562, "varbit", 0},
	{1700, "numeric", 0},
	{2249, "record", 0},
	{2278, "void", 0},
	{2950, "uuid", 0},
	{2951, "_uuid", 2950},
	{3802, "jsonb", 0},
	{3807, "_jsonb", 3802},
	{3904, "int4range", 0},
	{3906, "numrange", 0},
	{3908, "tsrange", 0},
	{3910, "tstzrange", 0},
	{3912, "daterange", 0},
	{3926, "int8range", 0},
}

func buildBuiltins() map[uint32]*Type {
	byOID := make(map[uint32]*Type, len(builtinSpecs))
	for _, s := range builtinSpecs {
		byOID[s.oid] = &Type{OID: s.oid, Name: s.name, Schema: "pg_catalog", Kind: KindSimple}
	}
	for _, s := range builtinSpecs {
		if s.elem == 0 {
			continue
		}
		elem, ok := byOID[s.elem]
		if !ok {
			continue
		}
		byOID[s.oid].Kind = KindArray
		byOID[s.oid].Elem = elem
	}
	return byOID
}
