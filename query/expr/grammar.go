// Package expr implements the predicate language used by conditional, choose
// and bind nodes:
//
//	name != null and (age >= 18 or admin)
//	len(ids) > 0 && status == 'active'
//	'%' + keyword + '%'
package expr

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `\b(and|or|not|null|nil|true|false|eq|neq|lte|lt|gte|gt)\b`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "Operator", Pattern: `==|!=|<=|>=|&&|\|\||[<>!+-]`},
	{Name: "Punct", Pattern: `[()\[\].,]`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type orExpr struct {
	Pos lexer.Position
	And []*andExpr `@@ ( ( "or" | "||" ) @@ )*`
}

type andExpr struct {
	Unary []*unaryExpr `@@ ( ( "and" | "&&" ) @@ )*`
}

type unaryExpr struct {
	Not *unaryExpr  `  ( "not" | "!" ) @@`
	Cmp *comparison `| @@`
}

type comparison struct {
	Left  *sum   `@@`
	Op    string `( @( "==" | "!=" | "<=" | ">=" | "<" | ">" | "eq" | "neq" | "lte" | "lt" | "gte" | "gt" )`
	Right *sum   `  @@ )?`
}

type sum struct {
	Head *operand   `@@`
	Tail []*addend `@@*`
}

type addend struct {
	Op      string   `@( "+" | "-" )`
	Operand *operand `@@`
}

type boolean bool

func (b *boolean) Capture(values []string) error {
	*b = values[0] == "true"
	return nil
}

type operand struct {
	Null   bool     `  @( "null" | "nil" )`
	Bool   *boolean `| @( "true" | "false" )`
	Number *string  `| @Number`
	String *string  `| @String`
	Call   *call    `| @@`
	Path   *path    `| @@`
	Neg    *operand `| "-" @@`
	Sub    *orExpr  `| "(" @@ ")"`
}

type call struct {
	Name string    `@Ident "("`
	Args []*orExpr `( @@ ( "," @@ )* )? ")"`
}

type path struct {
	Head string         `@Ident`
	Rest []*pathSegment `@@*`
}

type pathSegment struct {
	Field *string `  "." @( Ident | Keyword )`
	Index *string `| "[" @Number "]"`
	Key   *string `| "[" @String "]"`
}

func (p *path) String() string {
	var b strings.Builder
	b.WriteString(p.Head)
	for _, seg := range p.Rest {
		switch {
		case seg.Field != nil:
			b.WriteByte('.')
			b.WriteString(*seg.Field)
		case seg.Index != nil:
			b.WriteString("[" + *seg.Index + "]")
		case seg.Key != nil:
			b.WriteString("[" + strconv.Quote(*seg.Key) + "]")
		}
	}
	return b.String()
}

func unquote(t lexer.Token) (lexer.Token, error) {
	s := t.Value
	if len(s) < 2 {
		return t, nil
	}
	s = s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '"', '\'':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	t.Value = b.String()
	return t, nil
}

var parser = participle.MustBuild[orExpr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.Map(unquote, "String"),
	participle.UseLookahead(4),
)
