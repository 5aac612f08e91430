package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/unistring"

	"siskin/pkg/errors"
	"siskin/pkg/lexer"
	"siskin/pkg/source"
)

// ImportAttribute is one key/value pair of a `with { ... }` clause.
type ImportAttribute struct {
	Key   string
	Value string
}

// ModuleRequest is a specifier together with its import attributes.
type ModuleRequest struct {
	Specifier  string
	Attributes []ImportAttribute
}

// Key identifies a request independent of attribute order.
func (r ModuleRequest) Key() string {
	if len(r.Attributes) == 0 {
		return r.Specifier
	}
	attrs := make([]string, len(r.Attributes))
	for i, a := range r.Attributes {
		attrs[i] = a.Key + "=" + a.Value
	}
	sort.Strings(attrs)
	return r.Specifier + "\x00" + strings.Join(attrs, "\x00")
}

// Attribute returns the value of an attribute key, if present.
func (r ModuleRequest) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// ImportEntry records one imported binding.
type ImportEntry struct {
	ModuleRequest int
	ImportName    unistring.String // empty for namespace imports
	Namespace     bool
	LocalName     unistring.String
	offset        int
}

// ExportImportKind distinguishes `export * from` forms from named re-exports.
type ExportImportKind int

const (
	ImportNamed ExportImportKind = iota
	ImportAll                    // export * as ns from "m"
	ImportAllButDefault          // export * from "m"
)

// ExportEntry records one exported name.
type ExportEntry struct {
	ExportName    unistring.String // empty for `export * from`
	ModuleRequest int              // -1 for local exports
	ImportName    unistring.String
	ImportKind    ExportImportKind
	LocalName     unistring.String
	offset        int
}

// ModuleSyntax is the static import/export shape of a module.
type ModuleSyntax struct {
	Requests        []ModuleRequest
	Imports         []ImportEntry
	LocalExports    []ExportEntry
	IndirectExports []ExportEntry
	StarExports     []ExportEntry

	// DefaultExpression is the rewritten `export default <expr>` statement.
	// Its single binding is named *default* and is initialised like a
	// lexical declaration.
	DefaultExpression *ast.VariableStatement
}

// ImportedLocalNames lists the local bindings created by import entries.
func (m *ModuleSyntax) ImportedLocalNames() []unistring.String {
	names := make([]unistring.String, len(m.Imports))
	for i, ie := range m.Imports {
		names[i] = ie.LocalName
	}
	return names
}

const (
	defaultPlaceholder = "$default"
	importPlaceholder  = "$mport"
)

type declExport struct {
	offset int // start of the declaration after `export` was removed
}

type defaultExport struct {
	offset      int
	placeholder bool // anonymous function/class or expression
	expression  bool
}

// moduleScanner rewrites module syntax the JavaScript parser does not know
// into same-length text it does, recording what it removed.
type moduleScanner struct {
	sf     *source.SourceFile
	buf    []byte
	toks   []lexer.Token
	depths []int
	module bool

	syntax       ModuleSyntax
	pending      []ExportEntry // export clauses before classification
	requests     map[string]int
	decls        []declExport
	defaults     []defaultExport
	awaitLoops   map[int]bool
	importIdents map[int]bool
}

func newModuleScanner(sf *source.SourceFile, module bool) *moduleScanner {
	s := &moduleScanner{
		sf:           sf,
		buf:          []byte(sf.Content),
		module:       module,
		requests:     map[string]int{},
		awaitLoops:   map[int]bool{},
		importIdents: map[int]bool{},
	}
	if len(s.buf) > 1 && s.buf[0] == '#' && s.buf[1] == '!' {
		for i := 0; i < len(s.buf) && s.buf[i] != '\n' && s.buf[i] != '\r'; i++ {
			s.buf[i] = ' '
		}
	}
	l := lexer.NewLexer(string(s.buf))
	depth := 0
	for {
		tok := l.NextToken()
		s.toks = append(s.toks, tok)
		s.depths = append(s.depths, depth)
		if tok.Type == lexer.EOF {
			break
		}
		switch tok.Type {
		case lexer.LPAREN, lexer.LBRACKET, lexer.LBRACE:
			depth++
		case lexer.RPAREN, lexer.RBRACKET, lexer.RBRACE:
			depth--
		case lexer.TEMPLATE:
			if !strings.HasPrefix(tok.Literal, "}") && strings.HasSuffix(tok.Literal, "${") {
				depth++
			} else if strings.HasPrefix(tok.Literal, "}") && !strings.HasSuffix(tok.Literal, "${") {
				depth--
			}
		}
	}
	return s
}

func (s *moduleScanner) errorAt(tok lexer.Token, format string, args ...any) *errors.SyntaxError {
	return &errors.SyntaxError{
		Position: errors.PositionAt(s.sf, tok.StartPos, tok.EndPos),
		Msg:      fmt.Sprintf(format, args...),
	}
}

func (s *moduleScanner) tok(i int) lexer.Token {
	if i >= len(s.toks) {
		return s.toks[len(s.toks)-1]
	}
	return s.toks[i]
}

func isIdent(tok lexer.Token, name string) bool {
	return tok.Type == lexer.IDENT && tok.Value == name
}

// blank replaces [start, end) with spaces, keeping line terminators so that
// offsets and line numbers of everything else are unchanged.
func (s *moduleScanner) blank(start, end int) {
	for i := start; i < end; i++ {
		if s.buf[i] != '\n' && s.buf[i] != '\r' {
			s.buf[i] = ' '
		}
	}
}

// replace overwrites [start, end) with text, padding with spaces and keeping
// the region's line terminators at its end.
func (s *moduleScanner) replace(start, end int, text string) {
	newlines := 0
	for i := start; i < end; i++ {
		if s.buf[i] == '\n' {
			newlines++
		}
	}
	region := []byte(text)
	for len(region) < end-start-newlines {
		region = append(region, ' ')
	}
	for ; newlines > 0; newlines-- {
		region = append(region, '\n')
	}
	copy(s.buf[start:end], region)
}

// scan walks the token stream once, rewriting module syntax.
func (s *moduleScanner) scan() *errors.SyntaxError {
	for i := 0; i < len(s.toks); i++ {
		tok := s.toks[i]
		if tok.Type != lexer.IDENT {
			continue
		}
		prev := lexer.Token{}
		if i > 0 {
			prev = s.toks[i-1]
		}
		if prev.Type == lexer.DOT || prev.Type == lexer.OPTIONAL {
			continue
		}
		switch tok.Value {
		case "import":
			next := s.tok(i + 1)
			switch {
			case next.Type == lexer.LPAREN:
				if s.isMethodDefinition(i + 1) {
					continue
				}
				s.rewriteImportKeyword(tok)
			case next.Type == lexer.DOT && isIdent(s.tok(i+2), "meta"):
				if !s.module {
					return s.errorAt(tok, "Cannot use 'import.meta' outside a module")
				}
				s.rewriteImportKeyword(tok)
			case next.Type == lexer.COLON || next.Type == lexer.ASSIGN:
				// property name in a pattern or object literal
			case s.depths[i] == 0:
				if !s.module {
					return s.errorAt(tok, "Cannot use import statement outside a module")
				}
				end, err := s.importDeclaration(i)
				if err != nil {
					return err
				}
				i = end - 1
			}
		case "export":
			if s.depths[i] != 0 {
				continue
			}
			next := s.tok(i + 1)
			if next.Type == lexer.COLON || next.Type == lexer.ASSIGN || next.Type == lexer.LPAREN {
				continue
			}
			if !s.module {
				return s.errorAt(tok, "Unexpected token 'export'")
			}
			end, err := s.exportDeclaration(i)
			if err != nil {
				return err
			}
			i = end - 1
		case "for":
			if next := s.tok(i + 1); isIdent(next, "await") && s.tok(i+2).Type == lexer.LPAREN {
				s.blank(next.StartPos, next.EndPos)
				s.awaitLoops[tok.StartPos] = true
				i++
			}
		}
	}
	return nil
}

func (s *moduleScanner) rewriteImportKeyword(tok lexer.Token) {
	copy(s.buf[tok.StartPos:tok.EndPos], importPlaceholder)
	s.importIdents[tok.StartPos] = true
}

// isMethodDefinition reports whether the parenthesis at i closes into a
// function body, as in `import() {}` inside a class or object literal.
func (s *moduleScanner) isMethodDefinition(i int) bool {
	depth := s.depths[i]
	for j := i + 1; j < len(s.toks); j++ {
		if s.toks[j].Type == lexer.RPAREN && s.depths[j] == depth+1 {
			return s.tok(j+1).Type == lexer.LBRACE
		}
		if s.toks[j].Type == lexer.EOF {
			return false
		}
	}
	return false
}

func (s *moduleScanner) addRequest(req ModuleRequest) int {
	key := req.Key()
	if idx, ok := s.requests[key]; ok {
		return idx
	}
	idx := len(s.syntax.Requests)
	s.syntax.Requests = append(s.syntax.Requests, req)
	s.requests[key] = idx
	return idx
}

// moduleSpecifier parses `"spec" [with { ... }]` at i.
func (s *moduleScanner) moduleSpecifier(i int) (ModuleRequest, int, *errors.SyntaxError) {
	tok := s.tok(i)
	if tok.Type != lexer.STRING {
		return ModuleRequest{}, i, s.errorAt(tok, "Unexpected token %s", describe(tok))
	}
	req := ModuleRequest{Specifier: tok.Value}
	i++
	next := s.tok(i)
	if (isIdent(next, "with") || (isIdent(next, "assert") && !next.NewLine)) && s.tok(i+1).Type == lexer.LBRACE {
		i += 2
		seen := map[string]bool{}
		for s.tok(i).Type != lexer.RBRACE {
			key := s.tok(i)
			if key.Type != lexer.IDENT && key.Type != lexer.STRING {
				return req, i, s.errorAt(key, "Unexpected token %s", describe(key))
			}
			if s.tok(i+1).Type != lexer.COLON || s.tok(i+2).Type != lexer.STRING {
				return req, i, s.errorAt(s.tok(i+1), "Invalid import attribute")
			}
			if seen[key.Value] {
				return req, i, s.errorAt(key, "Import attribute has duplicate key '%s'", key.Value)
			}
			seen[key.Value] = true
			req.Attributes = append(req.Attributes, ImportAttribute{Key: key.Value, Value: s.tok(i + 2).Value})
			i += 3
			if s.tok(i).Type == lexer.COMMA {
				i++
			} else if s.tok(i).Type != lexer.RBRACE {
				return req, i, s.errorAt(s.tok(i), "Unexpected token %s", describe(s.tok(i)))
			}
		}
		i++
	}
	return req, i, nil
}

// statementEnd consumes an optional semicolon and returns the index of the
// first token after the statement.
func (s *moduleScanner) statementEnd(i int) (int, *errors.SyntaxError) {
	tok := s.tok(i)
	switch {
	case tok.Type == lexer.SEMICOLON:
		return i + 1, nil
	case tok.Type == lexer.EOF || tok.Type == lexer.RBRACE || tok.NewLine:
		return i, nil
	}
	return i, s.errorAt(tok, "Unexpected token %s", describe(tok))
}

func describe(tok lexer.Token) string {
	if tok.Type == lexer.EOF {
		return "end of input"
	}
	return "'" + tok.Literal + "'"
}

func (s *moduleScanner) bindingIdentifier(tok lexer.Token) (unistring.String, *errors.SyntaxError) {
	if tok.Type != lexer.IDENT || reservedWords[tok.Value] {
		return "", s.errorAt(tok, "Unexpected token %s", describe(tok))
	}
	return unistring.NewFromString(tok.Value), nil
}

var reservedWords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true, "else": true, "enum": true,
	"export": true, "extends": true, "false": true, "finally": true, "for": true, "function": true,
	"if": true, "import": true, "in": true, "instanceof": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true, "with": true,
	"await": true, "yield": true, "let": true, "static": true, "implements": true,
	"interface": true, "package": true, "private": true, "protected": true, "public": true,
}

func (s *moduleScanner) importDeclaration(start int) (int, *errors.SyntaxError) {
	i := start + 1
	var entries []ImportEntry

	if s.tok(i).Type != lexer.STRING {
		if tok := s.tok(i); tok.Type == lexer.IDENT {
			local, err := s.bindingIdentifier(tok)
			if err != nil {
				return i, err
			}
			entries = append(entries, ImportEntry{ImportName: "default", LocalName: local, offset: tok.StartPos})
			i++
			if s.tok(i).Type == lexer.COMMA {
				i++
				if t := s.tok(i); t.Type != lexer.ASTERISK && t.Type != lexer.LBRACE {
					return i, s.errorAt(t, "Unexpected token %s", describe(t))
				}
			}
		}
		switch tok := s.tok(i); tok.Type {
		case lexer.ASTERISK:
			if !isIdent(s.tok(i+1), "as") {
				return i, s.errorAt(s.tok(i+1), "Unexpected token %s", describe(s.tok(i+1)))
			}
			local, err := s.bindingIdentifier(s.tok(i + 2))
			if err != nil {
				return i, err
			}
			entries = append(entries, ImportEntry{Namespace: true, LocalName: local, offset: s.tok(i + 2).StartPos})
			i += 3
		case lexer.LBRACE:
			i++
			for s.tok(i).Type != lexer.RBRACE {
				name := s.tok(i)
				if name.Type != lexer.IDENT && name.Type != lexer.STRING {
					return i, s.errorAt(name, "Unexpected token %s", describe(name))
				}
				entry := ImportEntry{ImportName: unistring.NewFromString(name.Value), offset: name.StartPos}
				i++
				if isIdent(s.tok(i), "as") {
					local, err := s.bindingIdentifier(s.tok(i + 1))
					if err != nil {
						return i, err
					}
					entry.LocalName = local
					entry.offset = s.tok(i + 1).StartPos
					i += 2
				} else {
					if name.Type == lexer.STRING {
						return i, s.errorAt(name, "Unexpected string")
					}
					local, err := s.bindingIdentifier(name)
					if err != nil {
						return i, err
					}
					entry.LocalName = local
				}
				entries = append(entries, entry)
				if s.tok(i).Type == lexer.COMMA {
					i++
				} else if s.tok(i).Type != lexer.RBRACE {
					return i, s.errorAt(s.tok(i), "Unexpected token %s", describe(s.tok(i)))
				}
			}
			i++
		default:
			if len(entries) == 0 {
				return i, s.errorAt(tok, "Unexpected token %s", describe(tok))
			}
		}
		if !isIdent(s.tok(i), "from") {
			return i, s.errorAt(s.tok(i), "Unexpected token %s", describe(s.tok(i)))
		}
		i++
	}

	req, i, err := s.moduleSpecifier(i)
	if err != nil {
		return i, err
	}
	end, err := s.statementEnd(i)
	if err != nil {
		return i, err
	}
	idx := s.addRequest(req)
	for _, e := range entries {
		e.ModuleRequest = idx
		s.syntax.Imports = append(s.syntax.Imports, e)
	}
	s.blank(s.toks[start].StartPos, s.tok(end-1).EndPos)
	return end, nil
}

func (s *moduleScanner) exportDeclaration(start int) (int, *errors.SyntaxError) {
	exportTok := s.toks[start]
	i := start + 1
	tok := s.tok(i)

	switch {
	case tok.Type == lexer.ASTERISK:
		entry := ExportEntry{ImportKind: ImportAllButDefault, offset: tok.StartPos}
		i++
		if isIdent(s.tok(i), "as") {
			name := s.tok(i + 1)
			if name.Type != lexer.IDENT && name.Type != lexer.STRING {
				return i, s.errorAt(name, "Unexpected token %s", describe(name))
			}
			entry.ImportKind = ImportAll
			entry.ExportName = unistring.NewFromString(name.Value)
			entry.offset = name.StartPos
			i += 2
		}
		if !isIdent(s.tok(i), "from") {
			return i, s.errorAt(s.tok(i), "Unexpected token %s", describe(s.tok(i)))
		}
		req, next, err := s.moduleSpecifier(i + 1)
		if err != nil {
			return next, err
		}
		end, err := s.statementEnd(next)
		if err != nil {
			return next, err
		}
		entry.ModuleRequest = s.addRequest(req)
		s.pending = append(s.pending, entry)
		s.blank(exportTok.StartPos, s.tok(end-1).EndPos)
		return end, nil

	case tok.Type == lexer.LBRACE:
		type clause struct {
			local, exported lexer.Token
		}
		var clauses []clause
		i++
		for s.tok(i).Type != lexer.RBRACE {
			local := s.tok(i)
			if local.Type != lexer.IDENT && local.Type != lexer.STRING {
				return i, s.errorAt(local, "Unexpected token %s", describe(local))
			}
			c := clause{local: local, exported: local}
			i++
			if isIdent(s.tok(i), "as") {
				c.exported = s.tok(i + 1)
				if c.exported.Type != lexer.IDENT && c.exported.Type != lexer.STRING {
					return i, s.errorAt(c.exported, "Unexpected token %s", describe(c.exported))
				}
				i += 2
			}
			clauses = append(clauses, c)
			if s.tok(i).Type == lexer.COMMA {
				i++
			} else if s.tok(i).Type != lexer.RBRACE {
				return i, s.errorAt(s.tok(i), "Unexpected token %s", describe(s.tok(i)))
			}
		}
		i++
		reqIdx := -1
		if isIdent(s.tok(i), "from") {
			req, next, err := s.moduleSpecifier(i + 1)
			if err != nil {
				return next, err
			}
			reqIdx = s.addRequest(req)
			i = next
		}
		end, err := s.statementEnd(i)
		if err != nil {
			return i, err
		}
		for _, c := range clauses {
			entry := ExportEntry{
				ExportName:    unistring.NewFromString(c.exported.Value),
				ModuleRequest: reqIdx,
				offset:        c.local.StartPos,
			}
			if reqIdx < 0 {
				if c.local.Type == lexer.STRING || reservedWords[c.local.Value] {
					return i, s.errorAt(c.local, "Unexpected token %s", describe(c.local))
				}
				entry.LocalName = unistring.NewFromString(c.local.Value)
			} else {
				entry.ImportName = unistring.NewFromString(c.local.Value)
			}
			s.pending = append(s.pending, entry)
		}
		s.blank(exportTok.StartPos, s.tok(end-1).EndPos)
		return end, nil

	case isIdent(tok, "var") || isIdent(tok, "let") || isIdent(tok, "const") ||
		isIdent(tok, "function") || isIdent(tok, "class") ||
		(isIdent(tok, "async") && isIdent(s.tok(i+1), "function") && !s.tok(i+1).NewLine):
		s.blank(exportTok.StartPos, exportTok.EndPos)
		s.decls = append(s.decls, declExport{offset: tok.StartPos})
		return i, nil

	case isIdent(tok, "default"):
		return s.exportDefault(start)
	}
	return i, s.errorAt(tok, "Unexpected token %s", describe(tok))
}

func (s *moduleScanner) exportDefault(start int) (int, *errors.SyntaxError) {
	exportTok := s.toks[start]
	i := start + 2
	tok := s.tok(i)

	async := isIdent(tok, "async") && isIdent(s.tok(i+1), "function") && !s.tok(i+1).NewLine
	fnTok := i
	if async {
		fnTok = i + 1
	}
	if isIdent(s.tok(fnTok), "function") || isIdent(tok, "class") {
		nameIdx := fnTok + 1
		generator := false
		if s.tok(nameIdx).Type == lexer.ASTERISK {
			generator = true
			nameIdx++
		}
		if name := s.tok(nameIdx); name.Type == lexer.IDENT && name.Value != "extends" {
			// named declaration: exported under "default", bound locally by name
			s.blank(exportTok.StartPos, tok.StartPos)
			s.defaults = append(s.defaults, defaultExport{offset: tok.StartPos})
			return i, nil
		}
		text := "class " + defaultPlaceholder
		if !isIdent(tok, "class") {
			text = "function "
			if generator {
				text = "function* "
			}
			if async {
				text = "async " + text
			}
			text += defaultPlaceholder
		}
		s.replace(exportTok.StartPos, s.tok(nameIdx-1).EndPos, text)
		s.defaults = append(s.defaults, defaultExport{offset: exportTok.StartPos, placeholder: true})
		return nameIdx, nil
	}

	// export default AssignmentExpression;
	s.replace(exportTok.StartPos, s.toks[start+1].EndPos, "var "+defaultPlaceholder+" =")
	s.defaults = append(s.defaults, defaultExport{offset: exportTok.StartPos, placeholder: true, expression: true})
	return i, nil
}

// bind attaches the parsed declarations to the recorded exports and
// classifies every export entry.
func (s *moduleScanner) bind(prog *Program) *errors.SyntaxError {
	byOffset := map[int]ast.Statement{}
	for _, stmt := range prog.Body {
		byOffset[prog.Offset(stmt.Idx0())] = stmt
	}

	for _, d := range s.decls {
		stmt, ok := byOffset[d.offset]
		if !ok {
			return s.errorAtOffset(d.offset, "Unexpected token 'export'")
		}
		for _, name := range BoundNames(stmt) {
			s.pending = append(s.pending, ExportEntry{ExportName: name, ModuleRequest: -1, LocalName: name, offset: d.offset})
		}
	}

	for _, d := range s.defaults {
		stmt, ok := byOffset[d.offset]
		if !ok {
			return s.errorAtOffset(d.offset, "Unexpected token 'default'")
		}
		local := DefaultBindingName
		switch n := stmt.(type) {
		case *ast.FunctionDeclaration:
			if d.placeholder {
				n.Function.Name.Name = DefaultBindingName
			} else {
				local = n.Function.Name.Name
			}
		case *ast.ClassDeclaration:
			if d.placeholder {
				n.Class.Name.Name = DefaultBindingName
			} else {
				local = n.Class.Name.Name
			}
		case *ast.VariableStatement:
			if !d.expression || len(n.List) != 1 {
				return s.errorAtOffset(d.offset, "Unexpected token 'default'")
			}
			n.List[0].Target.(*ast.Identifier).Name = DefaultBindingName
			s.syntax.DefaultExpression = n
		default:
			return s.errorAtOffset(d.offset, "Unexpected token 'default'")
		}
		s.pending = append(s.pending, ExportEntry{ExportName: "default", ModuleRequest: -1, LocalName: local, offset: d.offset})
	}

	imports := map[unistring.String]*ImportEntry{}
	for i := range s.syntax.Imports {
		imports[s.syntax.Imports[i].LocalName] = &s.syntax.Imports[i]
	}

	for _, ee := range s.pending {
		switch {
		case ee.ModuleRequest < 0:
			ie, imported := imports[ee.LocalName]
			if !imported || ie.Namespace {
				s.syntax.LocalExports = append(s.syntax.LocalExports, ee)
				continue
			}
			s.syntax.IndirectExports = append(s.syntax.IndirectExports, ExportEntry{
				ExportName:    ee.ExportName,
				ModuleRequest: ie.ModuleRequest,
				ImportName:    ie.ImportName,
				offset:        ee.offset,
			})
		case ee.ImportKind == ImportAllButDefault:
			s.syntax.StarExports = append(s.syntax.StarExports, ee)
		default:
			s.syntax.IndirectExports = append(s.syntax.IndirectExports, ee)
		}
	}
	return s.checkModule(prog)
}

func (s *moduleScanner) errorAtOffset(offset int, format string, args ...any) *errors.SyntaxError {
	return &errors.SyntaxError{
		Position: errors.PositionAt(s.sf, offset, offset+1),
		Msg:      fmt.Sprintf(format, args...),
	}
}

// checkModule applies the module-level early errors.
func (s *moduleScanner) checkModule(prog *Program) *errors.SyntaxError {
	exported := map[unistring.String]bool{}
	for _, ee := range s.pending {
		if ee.ExportName == "" {
			continue
		}
		if exported[ee.ExportName] {
			return s.errorAtOffset(ee.offset, "Duplicate export of '%s'", ee.ExportName)
		}
		exported[ee.ExportName] = true
	}

	declared := map[unistring.String]bool{}
	for _, name := range VarDeclaredNames(prog.Body, false) {
		declared[name] = true
	}
	lexical := map[unistring.String]bool{}
	for _, name := range LexicallyDeclaredNames(prog.Body, false) {
		declared[name] = true
		lexical[name] = true
	}
	if s.syntax.DefaultExpression != nil {
		declared[DefaultBindingName] = true
	}

	seen := map[unistring.String]bool{}
	for _, ie := range s.syntax.Imports {
		if seen[ie.LocalName] || declared[ie.LocalName] {
			return s.errorAtOffset(ie.offset, "Identifier '%s' has already been declared", ie.LocalName)
		}
		seen[ie.LocalName] = true
	}

	for _, ee := range s.pending {
		if ee.ModuleRequest >= 0 {
			continue
		}
		if !declared[ee.LocalName] && !seen[ee.LocalName] {
			return s.errorAtOffset(ee.offset, "Export '%s' is not defined in module", ee.LocalName)
		}
	}
	return nil
}
