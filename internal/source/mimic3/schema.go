package mimic3

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ColumnKind classifies a table column for parsing purposes.
type ColumnKind int

const (
	KindSmallInt ColumnKind = iota
	KindInt                 // may be missing in the raw data, parsed as float
	KindText
	KindDecimal
	KindTimestamp
	KindDouble
)

// dtypeTokens maps the type tokens of the schema description files to
// column kinds. A token outside this vocabulary fails table construction;
// extend the map rather than skipping the column.
var dtypeTokens = map[string]ColumnKind{
	"int2":      KindSmallInt,
	"int4":      KindInt,
	"varchar":   KindText,
	"numeric":   KindDecimal,
	"timestamp": KindTimestamp,
	"float8":    KindDouble,
}

// Schema describes one table: column name (upper-cased) to kind.
type Schema map[string]ColumnKind

// readSchema parses a schema description file where each line is
// "<column_name> <type_token>". Malformed lines and unmapped tokens are
// configuration errors and fail immediately.
func readSchema(path string) (Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema description: %w", err)
	}
	defer f.Close()

	schema := make(Schema)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("schema description %s line %d is malformed: %q", path, lineNo, line)
		}
		name, token := fields[0], fields[1]
		kind, ok := dtypeTokens[token]
		if !ok {
			return nil, fmt.Errorf("schema description %s line %d: no mapping for type token %q", path, lineNo, token)
		}
		schema[strings.ToUpper(name)] = kind
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read schema description %s: %w", path, err)
	}
	return schema, nil
}
