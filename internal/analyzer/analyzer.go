package analyzer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Analysis is the result of statically analyzing one cell's source.
type Analysis struct {
	// Definitions are names the cell binds at module level.
	Definitions map[string]bool
	// References are names the cell reads that it does not itself bind
	// and that are not Python builtins.
	References map[string]bool
	// ParseFailed is set when the source could not be parsed. The sets
	// are empty in that case: an unparseable cell has no static effect.
	ParseFailed bool
}

// Analyzer extracts variable definitions and references from Python cells.
type Analyzer struct {
	parser   *sitter.Parser
	builtins map[string]bool
}

// New creates an analyzer with the default Python builtin set.
func New() *Analyzer {
	return NewWithBuiltins(nil)
}

// NewWithBuiltins creates an analyzer whose builtin set is extended with
// the given names. Extended names never appear in References.
func NewWithBuiltins(extra []string) *Analyzer {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())

	builtins := make(map[string]bool, len(pythonBuiltins)+len(extra))
	for _, name := range pythonBuiltins {
		builtins[name] = true
	}
	for _, name := range extra {
		name = strings.TrimSpace(name)
		if name != "" {
			builtins[name] = true
		}
	}

	return &Analyzer{parser: p, builtins: builtins}
}

// Analyze parses cell source and extracts definitions and references.
// It never fails: malformed source yields an empty analysis.
func (a *Analyzer) Analyze(source string) Analysis {
	analysis := Analysis{
		Definitions: make(map[string]bool),
		References:  make(map[string]bool),
	}

	clean := stripDirectives(source)
	content := []byte(clean)

	tree, err := a.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		analysis.ParseFailed = true
		return analysis
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		analysis.ParseFailed = true
		return analysis
	}

	collectDefinitions(root, content, analysis.Definitions)

	w := &refWalker{
		content:  content,
		builtins: a.builtins,
		scopes:   []map[string]bool{analysis.Definitions},
		refs:     analysis.References,
	}
	w.walk(root)

	return analysis
}

// stripDirectives removes magic, shell and help lines (%, !, ? prefixes)
// before parsing. They are environment directives, not Python.
func stripDirectives(source string) string {
	lines := strings.Split(source, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "%") || strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "?") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// collectDefinitions gathers module-level bindings. It descends through
// control flow (if/for/while/try/with) but not into nested scopes: a
// function or class contributes only its own name, and comprehension
// targets stay local to the comprehension.
func collectDefinitions(node *sitter.Node, content []byte, defs map[string]bool) {
	switch node.Type() {
	case "function_definition", "class_definition":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			defs[nameNode.Content(content)] = true
		}
		return

	case "lambda":
		return

	case "assignment":
		if left := node.ChildByFieldName("left"); left != nil {
			collectTargetNames(left, content, defs)
		}
		if right := node.ChildByFieldName("right"); right != nil {
			collectDefinitions(right, content, defs)
		}
		return

	case "augmented_assignment":
		if left := node.ChildByFieldName("left"); left != nil {
			collectTargetNames(left, content, defs)
		}
		if right := node.ChildByFieldName("right"); right != nil {
			collectDefinitions(right, content, defs)
		}
		return

	case "named_expression":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			collectTargetNames(nameNode, content, defs)
		}
		if value := node.ChildByFieldName("value"); value != nil {
			collectDefinitions(value, content, defs)
		}
		return

	case "for_statement":
		if left := node.ChildByFieldName("left"); left != nil {
			collectTargetNames(left, content, defs)
		}
		if right := node.ChildByFieldName("right"); right != nil {
			collectDefinitions(right, content, defs)
		}
		if body := node.ChildByFieldName("body"); body != nil {
			collectDefinitions(body, content, defs)
		}
		return

	case "as_pattern":
		// with open(p) as f / except E as e
		if alias := node.ChildByFieldName("alias"); alias != nil {
			collectTargetNames(alias, content, defs)
		}
		if value := node.NamedChild(0); value != nil {
			collectDefinitions(value, content, defs)
		}
		return

	case "import_statement", "import_from_statement":
		collectImportBindings(node, content, defs)
		return

	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		// Comprehension targets are local; walrus bindings inside still
		// escape to the enclosing scope.
		collectWalrusOnly(node, content, defs)
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectDefinitions(node.NamedChild(i), content, defs)
	}
}

// collectTargetNames extracts bound names from an assignment target,
// handling tuple/list unpacking and starred targets. Attribute and
// subscript targets bind no new name.
func collectTargetNames(node *sitter.Node, content []byte, defs map[string]bool) {
	switch node.Type() {
	case "identifier", "as_pattern_target":
		if node.Type() == "as_pattern_target" {
			if inner := node.NamedChild(0); inner != nil {
				collectTargetNames(inner, content, defs)
			}
			return
		}
		defs[node.Content(content)] = true
	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list", "tuple", "list":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			collectTargetNames(node.NamedChild(i), content, defs)
		}
	case "list_splat_pattern", "splat_pattern", "parenthesized_expression":
		if inner := node.NamedChild(0); inner != nil {
			collectTargetNames(inner, content, defs)
		}
	case "typed_parameter":
		if inner := node.NamedChild(0); inner != nil {
			collectTargetNames(inner, content, defs)
		}
	}
}

// collectImportBindings records the names an import statement binds:
// "import a.b" binds a, "import x as y" binds y, "from m import n" binds n.
func collectImportBindings(node *sitter.Node, content []byte, defs map[string]bool) {
	fromImport := node.Type() == "import_from_statement"

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if fromImport && node.FieldNameForChild(i) != "name" {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			name := child.Content(content)
			if fromImport {
				defs[name] = true
			} else if idx := strings.Index(name, "."); idx != -1 {
				defs[name[:idx]] = true
			} else {
				defs[name] = true
			}
		case "identifier":
			if fromImport {
				defs[child.Content(content)] = true
			}
		case "aliased_import":
			if alias := child.ChildByFieldName("alias"); alias != nil {
				defs[alias.Content(content)] = true
			}
		}
	}
}

// collectWalrusOnly descends a subtree recording only walrus targets,
// skipping any deeper nested scope.
func collectWalrusOnly(node *sitter.Node, content []byte, defs map[string]bool) {
	switch node.Type() {
	case "function_definition", "class_definition", "lambda":
		return
	case "named_expression":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			collectTargetNames(nameNode, content, defs)
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectWalrusOnly(node.NamedChild(i), content, defs)
	}
}
