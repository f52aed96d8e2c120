package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

/*
Grammar of the weight dump:

File        := Directive* "using" "std" "::" "vector" ";" Declaration*
Declaration := Type <ident> Literal ";"
Type        := ( "vector" "<" )* "float" ">"*
Literal     := "{" ( Literal ( "," Literal )* | Number ( "," Number )* )? "}"
*/

var (
	dumpLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Directive", Pattern: `#[^\n]*`},
		{Name: "Number", Pattern: `-?(?:inf|nan)\b|-?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
		{Name: "Punct", Pattern: `::|[{}<>,;]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	dumpParser = participle.MustBuild[dumpFile](
		participle.Lexer(dumpLexer),
		participle.Elide("Whitespace"),
	)
)

type dumpFile struct {
	Includes []string           `parser:"@Directive*"`
	Using    string             `parser:"@\"using\" \"std\" \"::\" \"vector\" \";\""`
	Decls    []*dumpDeclaration `parser:"@@*"`
}

type dumpDeclaration struct {
	Pos    lexer.Position
	Open   []string     `parser:"( @\"vector\" \"<\" )*"`
	Elem   string       `parser:"@\"float\""`
	Close  []string     `parser:"@\">\"*"`
	Name   string       `parser:"@Ident"`
	Values *dumpLiteral `parser:"@@ \";\""`
}

type dumpLiteral struct {
	Elements *dumpElements `parser:"\"{\" @@? \"}\""`
}

type dumpElements struct {
	Children []*dumpLiteral `parser:"  @@ ( \",\" @@ )*"`
	Numbers  []string       `parser:"| @Number ( \",\" @Number )*"`
}

// Declaration is one parsed vector initialiser.
type Declaration struct {
	Name   string
	Shape  []int
	Values []float32
}

// Kind returns "weights" or "biases".
func (d Declaration) Kind() string {
	kind, _, _ := strings.Cut(d.Name, "_")
	return kind
}

// Layer returns the layer the declaration belongs to.
func (d Declaration) Layer() string {
	_, layer, _ := strings.Cut(d.Name, "_")
	return layer
}

// Dump is a parsed weight dump.
type Dump struct {
	Includes     []string
	Declarations []Declaration
}

// ParseDump reads a dump produced by WriteDump and reconstructs every
// declaration's shape and row-major values.
func ParseDump(r io.Reader) (*Dump, error) {
	file, err := dumpParser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("error parsing weight dump: %w", err)
	}

	dump := &Dump{Includes: file.Includes}
	for _, decl := range file.Decls {
		d, err := decl.toDeclaration()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", decl.Pos, err)
		}
		dump.Declarations = append(dump.Declarations, d)
	}
	return dump, nil
}

func (d *dumpDeclaration) toDeclaration() (Declaration, error) {
	rank := len(d.Open)
	if rank == 0 || len(d.Close) != rank {
		return Declaration{}, fmt.Errorf("declaration %s has unbalanced type %s", d.Name, DeclType(rank))
	}

	shape := make([]int, rank)
	for i := range shape {
		shape[i] = -1
	}
	var values []float32
	if err := d.Values.collect(0, shape, &values); err != nil {
		return Declaration{}, fmt.Errorf("declaration %s: %w", d.Name, err)
	}
	for i := range shape {
		if shape[i] < 0 {
			shape[i] = 0
		}
	}

	return Declaration{Name: d.Name, Shape: shape, Values: values}, nil
}

func (l *dumpLiteral) collect(level int, shape []int, values *[]float32) error {
	elems := l.Elements
	if elems == nil {
		elems = &dumpElements{}
	}
	leaf := level == len(shape)-1
	if leaf && len(elems.Children) > 0 {
		return fmt.Errorf("nesting deeper than rank %d", len(shape))
	}
	if !leaf && len(elems.Numbers) > 0 {
		return fmt.Errorf("scalars at depth %d of rank %d", level+1, len(shape))
	}

	n := len(elems.Children)
	if leaf {
		n = len(elems.Numbers)
	}
	switch {
	case shape[level] < 0:
		shape[level] = n
	case shape[level] != n:
		return fmt.Errorf("ragged literal: %d elements at depth %d, expected %d", n, level+1, shape[level])
	}

	if leaf {
		for _, s := range elems.Numbers {
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return fmt.Errorf("invalid scalar %q: %w", s, err)
			}
			*values = append(*values, float32(v))
		}
		return nil
	}
	for _, child := range elems.Children {
		if err := child.collect(level+1, shape, values); err != nil {
			return err
		}
	}
	return nil
}
