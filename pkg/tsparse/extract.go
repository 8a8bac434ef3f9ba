package tsparse

import (
	"sort"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
)

// Grammar node types used during extraction.
const (
	nodeImportStatement = "import_statement"
	nodeImportClause    = "import_clause"
	nodeImportRequire   = "import_require_clause"
	nodeNamedImports    = "named_imports"
	nodeImportSpecifier = "import_specifier"
	nodeNamespaceImport = "namespace_import"
	nodeIdentifier      = "identifier"
	nodeString          = "string"
	nodeTemplateString  = "template_string"
	nodeTemplateSubst   = "template_substitution"
	nodeCallExpression  = "call_expression"
	nodeImport          = "import"
	tokenType           = "type"

	fieldFunction  = "function"
	fieldArguments = "arguments"
	fieldName      = "name"
	fieldAlias     = "alias"
)

// extractImports walks the tree once and collects static and dynamic imports.
// Every string is copied out of src.
func extractImports(root sitter.Node, src []byte) []migration.ImportInfo {
	if root.IsNull() {
		return nil
	}

	var out []migration.ImportInfo

	cursor := sitter.NewTreeCursor(root)

	for {
		node := cursor.CurrentNode()
		descend := true

		switch node.Type() {
		case nodeImportStatement:
			if imp, ok := staticImport(node, src); ok {
				out = append(out, imp)
			}

			descend = false
		case nodeCallExpression:
			if imp, ok := dynamicImport(node, src); ok {
				out = append(out, imp)
			}
		}

		if descend && cursor.GoToFirstChild() {
			continue
		}

		for !cursor.GoToNextSibling() {
			if !cursor.GoToParent() {
				sort.SliceStable(out, func(i, j int) bool { return out[i].Range.Start < out[j].Range.Start })

				return out
			}
		}
	}
}

func staticImport(stmt sitter.Node, src []byte) (migration.ImportInfo, bool) {
	imp := newImport(stmt, migration.KindStaticNamed)

	var (
		typeOnly  bool
		haveSpec  bool
		namespace bool
	)

	for i := range stmt.ChildCount() {
		child := stmt.Child(i)
		if child.IsNull() {
			continue
		}

		switch child.Type() {
		case tokenType:
			typeOnly = true
		case nodeImportClause:
			namespace = collectClauseNames(child, src, &imp.Names)
		case nodeImportRequire:
			for j := range child.NamedChildCount() {
				gc := child.NamedChild(j)
				switch gc.Type() {
				case nodeIdentifier:
					imp.Names = append(imp.Names, gc.Content(src))
				case nodeString:
					imp.SourcePath = unquote(gc.Content(src))
					haveSpec = true
				}
			}
		case nodeString:
			imp.SourcePath = unquote(child.Content(src))
			haveSpec = true
		}
	}

	if !haveSpec {
		return migration.ImportInfo{}, false
	}

	switch {
	case typeOnly:
		imp.Kind = migration.KindTypeOnly
	case namespace:
		imp.Kind = migration.KindStaticNamespace
	}

	return imp, true
}

// collectClauseNames appends imported identifiers and reports whether the
// clause contains a namespace import.
func collectClauseNames(clause sitter.Node, src []byte, names *[]string) bool {
	namespace := false

	for i := range clause.NamedChildCount() {
		child := clause.NamedChild(i)

		switch child.Type() {
		case nodeIdentifier:
			*names = append(*names, child.Content(src))
		case nodeNamespaceImport:
			namespace = true

			for j := range child.NamedChildCount() {
				if id := child.NamedChild(j); id.Type() == nodeIdentifier {
					*names = append(*names, id.Content(src))
				}
			}
		case nodeNamedImports:
			for j := range child.NamedChildCount() {
				spec := child.NamedChild(j)
				if spec.Type() != nodeImportSpecifier {
					continue
				}

				if name := specifierName(spec, src); name != "" {
					*names = append(*names, name)
				}
			}
		}
	}

	return namespace
}

func specifierName(spec sitter.Node, src []byte) string {
	if alias := spec.ChildByFieldName(fieldAlias); !alias.IsNull() {
		return alias.Content(src)
	}

	if name := spec.ChildByFieldName(fieldName); !name.IsNull() {
		return name.Content(src)
	}

	return ""
}

func dynamicImport(call sitter.Node, src []byte) (migration.ImportInfo, bool) {
	fn := call.ChildByFieldName(fieldFunction)
	if fn.IsNull() || fn.Type() != nodeImport {
		return migration.ImportInfo{}, false
	}

	args := call.ChildByFieldName(fieldArguments)
	if args.IsNull() || args.NamedChildCount() == 0 {
		return migration.ImportInfo{}, false
	}

	arg := args.NamedChild(0)

	switch arg.Type() {
	case nodeString:
	case nodeTemplateString:
		for i := range arg.NamedChildCount() {
			if arg.NamedChild(i).Type() == nodeTemplateSubst {
				return migration.ImportInfo{}, false
			}
		}
	default:
		return migration.ImportInfo{}, false
	}

	imp := newImport(call, migration.KindDynamic)
	imp.SourcePath = unquote(arg.Content(src))

	return imp, true
}

func newImport(n sitter.Node, kind migration.ImportKind) migration.ImportInfo {
	pos := n.StartPoint()

	return migration.ImportInfo{
		Kind:   kind,
		Range:  migration.ByteRange{Start: uint32(n.StartByte()), End: uint32(n.EndByte())}, //nolint:gosec // bounded by file size
		Line:   uint32(pos.Row) + 1,                                                     //nolint:gosec // bounded by file size
		Column: uint32(pos.Column),                                                     //nolint:gosec // bounded by file size
	}
}

// unquote strips one pair of matching quotes or backticks. Escapes are kept as written.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}

	first, last := s[0], s[len(s)-1]
	if first == last && (first == '\'' || first == '"' || first == '`') {
		return s[1 : len(s)-1]
	}

	return s
}
