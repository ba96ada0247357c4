package cql

import (
	"strconv"
	"strings"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// parser walks a token stream per §4.E's abstract grammar:
//   query := entity ("WHERE" predicate)? ("ORDER BY" field (ASC|DESC))? ("LIMIT" N)?
type parser struct {
	tokens []Token
	pos    int
}

// Parse turns a raw query string into a Query, per the ParseError failure
// in §4.E.
func Parse(query string) (Query, error) {
	tokens, err := Lex(query)
	if err != nil {
		return Query{}, err
	}
	p := &parser{tokens: tokens}
	return p.parseQuery()
}

func (p *parser) peek() Token  { return p.tokens[p.pos] }
func (p *parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *parser) parseQuery() (Query, error) {
	entTok := p.advance()
	if entTok.Kind != TokIdent {
		return Query{}, rerrors.New(rerrors.CodeParseError, "expected entity name").WithDetails("pos", entTok.Pos)
	}
	entity := Entity(strings.ToLower(entTok.Text))
	if !validEntities[entity] {
		return Query{}, rerrors.New(rerrors.CodeUnknownEntity, "unknown entity").WithDetails("entity", entTok.Text)
	}
	q := Query{Entity: entity}

	if p.upperIs("WHERE") {
		p.advance()
		pred, err := p.parsePredicate()
		if err != nil {
			return Query{}, err
		}
		q.Where = &pred
	}

	if p.upperIs("ORDER") {
		p.advance()
		if !p.upperIs("BY") {
			return Query{}, rerrors.New(rerrors.CodeParseError, "expected BY after ORDER").WithDetails("pos", p.peek().Pos)
		}
		p.advance()
		fieldTok := p.advance()
		if fieldTok.Kind != TokIdent {
			return Query{}, rerrors.New(rerrors.CodeParseError, "expected field after ORDER BY").WithDetails("pos", fieldTok.Pos)
		}
		q.OrderBy = fieldTok.Text
		q.Direction = Ascending
		if p.upperIs("ASC") {
			p.advance()
		} else if p.upperIs("DESC") {
			q.Direction = Descending
			p.advance()
		}
	}

	if p.upperIs("LIMIT") {
		p.advance()
		numTok := p.advance()
		n, err := strconv.Atoi(numTok.Text)
		if err != nil {
			return Query{}, rerrors.New(rerrors.CodeParseError, "expected integer after LIMIT").WithDetails("pos", numTok.Pos)
		}
		q.Limit = &n
	}

	if p.peek().Kind != TokEOF {
		return Query{}, rerrors.New(rerrors.CodeParseError, "unexpected trailing input").WithDetails("pos", p.peek().Pos)
	}

	return q, nil
}

func (p *parser) upperIs(kw string) bool {
	t := p.peek()
	return t.Kind == TokIdent && strings.EqualFold(t.Text, kw)
}

// parsePredicate implements `term (("AND"|"OR") term)*`.
func (p *parser) parsePredicate() (Predicate, error) {
	first, err := p.parseTerm()
	if err != nil {
		return Predicate{}, err
	}
	pred := Predicate{First: first}

	for p.upperIs("AND") || p.upperIs("OR") {
		conj := strings.ToUpper(p.advance().Text)
		term, err := p.parseTerm()
		if err != nil {
			return Predicate{}, err
		}
		pred.Rest = append(pred.Rest, PredicateTail{Conjunction: conj, Term: term})
	}
	return pred, nil
}

// parseTerm implements:
//   term := field op value | field "IN" "(" value ("," value)* ")" | "NOT" term
func (p *parser) parseTerm() (Term, error) {
	if p.upperIs("NOT") {
		p.advance()
		inner, err := p.parseTerm()
		if err != nil {
			return Term{}, err
		}
		inner.Not = !inner.Not
		return inner, nil
	}

	fieldTok := p.advance()
	if fieldTok.Kind != TokIdent {
		return Term{}, rerrors.New(rerrors.CodeParseError, "expected field name in predicate").WithDetails("pos", fieldTok.Pos)
	}

	if p.upperIs("IN") {
		p.advance()
		if p.peek().Kind != TokLParen {
			return Term{}, rerrors.New(rerrors.CodeParseError, "expected ( after IN").WithDetails("pos", p.peek().Pos)
		}
		p.advance()
		var values []any
		for {
			valTok := p.advance()
			values = append(values, literalValue(valTok))
			if p.peek().Kind == TokComma {
				p.advance()
				continue
			}
			break
		}
		if p.peek().Kind != TokRParen {
			return Term{}, rerrors.New(rerrors.CodeParseError, "expected ) to close IN list").WithDetails("pos", p.peek().Pos)
		}
		p.advance()
		return Term{Field: fieldTok.Text, Op: OpIn, Values: values}, nil
	}

	opTok := p.advance()
	op, err := parseOp(opTok)
	if err != nil {
		return Term{}, err
	}
	valTok := p.advance()
	return Term{Field: fieldTok.Text, Op: op, Value: literalValue(valTok)}, nil
}

func parseOp(tok Token) (Op, error) {
	switch {
	case tok.Kind == TokOp:
		return Op(tok.Text), nil
	case tok.Kind == TokIdent && strings.EqualFold(tok.Text, "CONTAINS"):
		return OpContains, nil
	case tok.Kind == TokIdent && strings.EqualFold(tok.Text, "MATCHES"):
		return OpMatches, nil
	default:
		return "", rerrors.New(rerrors.CodeParseError, "expected an operator").WithDetails("pos", tok.Pos)
	}
}

func literalValue(tok Token) any {
	switch tok.Kind {
	case TokNumber:
		if f, err := strconv.ParseFloat(tok.Text, 64); err == nil {
			return f
		}
		return tok.Text
	case TokIdent:
		switch strings.ToLower(tok.Text) {
		case "true":
			return true
		case "false":
			return false
		}
		return tok.Text
	default:
		return tok.Text
	}
}
