package frontend

import "testing"

func kinds(toks []Token) []Kind {
	ks := make([]Kind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func scanAll(src string) []Token {
	l := New("<test>", src)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks
		}
	}
}

func TestLexerScansKeywordsIdentsAndPunctuation(t *testing.T) {
	toks := scanAll(`class Foo : Bar { var x: integer; function f(byName y: real): integer { return x; } }`)
	got := kinds(toks)
	want := []Kind{
		KwClass, IDENT, Colon, IDENT, LBrace,
		KwVar, IDENT, Colon, IDENT, Semicolon,
		KwFunction, IDENT, LParen, KwByName, IDENT, Colon, IDENT, RParen, Colon, IDENT, LBrace,
		KwReturn, IDENT, Semicolon,
		RBrace, RBrace, EOF,
	}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d\ngot:  %v\nwant: %v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: kind = %d, want %d (lexeme %q)", i, got[i], want[i], toks[i].Lexeme)
		}
	}
}

func TestLexerScansOperators(t *testing.T) {
	toks := scanAll(`+ - * / < > <= >= = ~= :=`)
	got := kinds(toks)
	want := []Kind{Plus, Minus, Star, Slash, Less, Greater, LessEq, GreaterEq, Eq, Neq, Assign, EOF}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: kind = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLexerScansIntRealAndStringLiterals(t *testing.T) {
	toks := scanAll(`42 3.5 "hello world"`)
	if toks[0].Kind != INT || toks[0].IntVal != 42 {
		t.Errorf("token 0 = %+v, want INT 42", toks[0])
	}
	if toks[1].Kind != REAL || toks[1].RealVal != 3.5 {
		t.Errorf("token 1 = %+v, want REAL 3.5", toks[1])
	}
	if toks[2].Kind != STRING || toks[2].Lexeme != "hello world" {
		t.Errorf("token 2 = %+v, want STRING \"hello world\"", toks[2])
	}
}

func TestLexerSkipsLineComments(t *testing.T) {
	toks := scanAll("var x: integer; // trailing comment\nvar y: integer;")
	got := kinds(toks)
	want := []Kind{KwVar, IDENT, Colon, IDENT, Semicolon, KwVar, IDENT, Colon, IDENT, Semicolon, EOF}
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d\ngot: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: kind = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLexerTracksLineNumbers(t *testing.T) {
	toks := scanAll("var x: integer;\nvar y: integer;")
	// the second "var" keyword starts line 2
	var secondVarLine int
	seen := 0
	for _, tok := range toks {
		if tok.Kind == KwVar {
			seen++
			if seen == 2 {
				secondVarLine = tok.Line
			}
		}
	}
	if secondVarLine != 2 {
		t.Errorf("second var keyword line = %d, want 2", secondVarLine)
	}
}
