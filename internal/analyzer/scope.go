package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// refWalker collects external references with an explicit scope stack.
// Scope 0 holds the cell's module-level definitions, so a name the cell
// itself binds is never reported as a reference. Entering a function,
// lambda, class or comprehension pushes a scope holding that construct's
// local bindings; leaving it pops.
type refWalker struct {
	content  []byte
	builtins map[string]bool
	scopes   []map[string]bool
	refs     map[string]bool
}

func (w *refWalker) push(scope map[string]bool) {
	w.scopes = append(w.scopes, scope)
}

func (w *refWalker) pop() {
	w.scopes = w.scopes[:len(w.scopes)-1]
}

func (w *refWalker) bound(name string) bool {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if w.scopes[i][name] {
			return true
		}
	}
	return false
}

func (w *refWalker) record(name string) {
	if name == "" || w.bound(name) || w.builtins[name] {
		return
	}
	w.refs[name] = true
}

// walk traverses a node in load context.
func (w *refWalker) walk(node *sitter.Node) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "identifier":
		w.record(node.Content(w.content))
		return

	case "attribute":
		// Only the object side is a variable read; the attribute name
		// lives in the object's namespace.
		w.walk(node.ChildByFieldName("object"))
		return

	case "keyword_argument":
		w.walk(node.ChildByFieldName("value"))
		return

	case "assignment":
		w.walkStore(node.ChildByFieldName("left"))
		w.walk(node.ChildByFieldName("type"))
		w.walk(node.ChildByFieldName("right"))
		return

	case "augmented_assignment":
		// Read-before-write: the target is a reference too.
		w.walk(node.ChildByFieldName("left"))
		w.walk(node.ChildByFieldName("right"))
		return

	case "named_expression":
		w.walkStore(node.ChildByFieldName("name"))
		w.walk(node.ChildByFieldName("value"))
		return

	case "for_statement":
		w.walk(node.ChildByFieldName("right"))
		w.walkStore(node.ChildByFieldName("left"))
		w.walk(node.ChildByFieldName("body"))
		w.walk(node.ChildByFieldName("alternative"))
		return

	case "for_in_clause":
		w.walk(node.ChildByFieldName("right"))
		w.walkStore(node.ChildByFieldName("left"))
		return

	case "as_pattern":
		w.walk(node.NamedChild(0))
		return

	case "import_statement", "import_from_statement", "future_import_statement":
		return

	case "global_statement", "nonlocal_statement":
		return

	case "function_definition":
		w.walkFunction(node)
		return

	case "lambda":
		w.walkLambda(node)
		return

	case "class_definition":
		w.walkClass(node)
		return

	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		w.walkComprehension(node)
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i))
	}
}

// walkStore traverses an assignment target. Bare names bind rather than
// read, but subscript and attribute targets still read their base object
// (x[i] = v reads both x and i).
func (w *refWalker) walkStore(node *sitter.Node) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "identifier", "as_pattern_target":
		return
	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list", "tuple", "list",
		"list_splat_pattern", "splat_pattern", "parenthesized_expression":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			w.walkStore(node.NamedChild(i))
		}
		return
	case "subscript":
		w.walk(node.ChildByFieldName("value"))
		w.walk(node.ChildByFieldName("subscript"))
		return
	case "attribute":
		w.walk(node.ChildByFieldName("object"))
		return
	}

	w.walk(node)
}

func (w *refWalker) walkFunction(node *sitter.Node) {
	params := node.ChildByFieldName("parameters")

	// Defaults, annotations and the return type evaluate in the
	// enclosing scope.
	w.walkParamsOuter(params)
	w.walk(node.ChildByFieldName("return_type"))

	scope := make(map[string]bool)
	collectParamNames(params, w.content, scope)
	if body := node.ChildByFieldName("body"); body != nil {
		collectDefinitions(body, w.content, scope)
		w.push(scope)
		w.walk(body)
		w.pop()
	}
}

func (w *refWalker) walkLambda(node *sitter.Node) {
	params := node.ChildByFieldName("parameters")
	w.walkParamsOuter(params)

	scope := make(map[string]bool)
	collectParamNames(params, w.content, scope)
	if body := node.ChildByFieldName("body"); body != nil {
		collectWalrusOnly(body, w.content, scope)
		w.push(scope)
		w.walk(body)
		w.pop()
	}
}

func (w *refWalker) walkClass(node *sitter.Node) {
	w.walk(node.ChildByFieldName("superclasses"))

	scope := make(map[string]bool)
	if body := node.ChildByFieldName("body"); body != nil {
		collectDefinitions(body, w.content, scope)
		w.push(scope)
		w.walk(body)
		w.pop()
	}
}

func (w *refWalker) walkComprehension(node *sitter.Node) {
	scope := make(map[string]bool)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "for_in_clause" {
			if left := child.ChildByFieldName("left"); left != nil {
				collectTargetNames(left, w.content, scope)
			}
		}
	}

	w.push(scope)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i))
	}
	w.pop()
}

// walkParamsOuter visits the parts of a parameter list that evaluate in
// the enclosing scope: default values and type annotations.
func (w *refWalker) walkParamsOuter(params *sitter.Node) {
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "default_parameter":
			w.walk(p.ChildByFieldName("value"))
		case "typed_default_parameter":
			w.walk(p.ChildByFieldName("type"))
			w.walk(p.ChildByFieldName("value"))
		case "typed_parameter":
			w.walk(p.ChildByFieldName("type"))
		}
	}
}

// collectParamNames records the names a parameter list binds.
func collectParamNames(params *sitter.Node, content []byte, scope map[string]bool) {
	if params == nil {
		return
	}
	// Lambda parameters arrive as lambda_parameters with the same child
	// shapes as a def's parameters.
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			scope[p.Content(content)] = true
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				collectTargetNames(name, content, scope)
			}
		case "typed_parameter":
			if inner := p.NamedChild(0); inner != nil {
				collectTargetNames(inner, content, scope)
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if inner := p.NamedChild(0); inner != nil {
				collectTargetNames(inner, content, scope)
			}
		case "tuple_pattern":
			collectTargetNames(p, content, scope)
		}
	}
}
