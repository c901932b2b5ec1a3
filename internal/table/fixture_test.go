package table

import (
	"os"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/canisterstack/icdb/internal/codec"
)

// fixtureColumn and fixtureSchema mirror testdata/*.yaml's shape; kept
// separate from codec.TableSchema since the wire schema carries richer
// types (Sanitizer/Validator, ForeignKey) than a YAML fixture needs.
type fixtureColumn struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	PrimaryKey bool   `yaml:"primary_key"`
}

type fixtureSchema struct {
	Name      string          `yaml:"name"`
	Alignment int             `yaml:"alignment"`
	Columns   []fixtureColumn `yaml:"columns"`
}

var fixtureKinds = map[string]codec.Kind{
	"bool":      codec.KindBool,
	"int8":      codec.KindInt8,
	"int16":     codec.KindInt16,
	"int32":     codec.KindInt32,
	"int64":     codec.KindInt64,
	"uint8":     codec.KindUint8,
	"uint16":    codec.KindUint16,
	"uint32":    codec.KindUint32,
	"uint64":    codec.KindUint64,
	"decimal":   codec.KindDecimal,
	"text":      codec.KindText,
	"blob":      codec.KindBlob,
	"date":      codec.KindDate,
	"datetime":  codec.KindDateTime,
	"principal": codec.KindPrincipal,
	"uuid":      codec.KindUuid,
	"json":      codec.KindJson,
}

// loadFixtureSchema reads a testdata/*.yaml file and builds the
// codec.TableSchema it describes.
func loadFixtureSchema(t *testing.T, path string) codec.TableSchema {
	t.Helper()
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	var fs fixtureSchema
	if err := yaml.Unmarshal(buf, &fs); err != nil {
		t.Fatalf("parse fixture %s: %v", path, err)
	}
	schema := codec.TableSchema{
		Name:      fs.Name,
		Alignment: fs.Alignment,
		Columns:   make([]codec.ColumnDef, len(fs.Columns)),
	}
	pkIndex := -1
	for i, c := range fs.Columns {
		kind, ok := fixtureKinds[c.Type]
		if !ok {
			t.Fatalf("fixture %s: unknown column type %q", path, c.Type)
		}
		schema.Columns[i] = codec.ColumnDef{
			Name:         c.Name,
			DataType:     kind,
			Nullable:     c.Nullable,
			IsPrimaryKey: c.PrimaryKey,
		}
		if c.PrimaryKey {
			pkIndex = i
		}
	}
	if pkIndex < 0 {
		t.Fatalf("fixture %s: no primary_key column declared", path)
	}
	schema.PrimaryKeyIndex = pkIndex
	return schema
}

func TestLoadUsersFixture(t *testing.T) {
	schema := loadFixtureSchema(t, "testdata/users.yaml")
	if schema.Name != "users" {
		t.Fatalf("expected name users, got %q", schema.Name)
	}
	if len(schema.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(schema.Columns))
	}
	if schema.Columns[2].DataType != codec.KindText || !schema.Columns[2].Nullable {
		t.Fatalf("unexpected nickname column %+v", schema.Columns[2])
	}
	if _, err := schema.ResolvedAlignment(); err != nil {
		t.Fatalf("ResolvedAlignment: %v", err)
	}
}
