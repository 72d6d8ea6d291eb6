package ofx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Repair rewrites an SGML transaction-list fragment into a string that a JSON
// parser can consume. OFX is SGML-derived: leaf elements routinely omit their
// closing tags and repeated entries sit as same-named siblings. The rewrite
// rules run in a fixed order so later rules can rely on earlier ones:
//
//  1. Leaf tags are implicitly closed: text between an opening tag and the
//     next tag boundary becomes that element's value.
//  2. Tag names become double-quoted JSON object keys; reserved characters
//     inside values are escaped.
//  3. Same-named immediate siblings are coerced into a JSON array instead of
//     colliding as duplicate object keys.
//  4. Key/value pairs and array elements are joined with commas, with no
//     trailing separators.
//  5. Values stay strings. Amount and date literals use OFX-specific formats
//     that generic JSON typing would mangle; typing is the normalizer's job.
//
// If the result still fails JSON validation the whole repair fails; the error
// carries a bounded slice of the offending input for diagnostics.
func Repair(src string) (string, error) {
	root, err := parseFragment(src)
	if err != nil {
		return "", &ParseError{
			Stage:   StageRepair,
			Msg:     "transaction list could not be rewritten to JSON",
			Snippet: snippet(strings.TrimSpace(src)),
			Err:     err,
		}
	}

	var b strings.Builder
	if err := writeObject(&b, root.children); err != nil {
		return "", &ParseError{
			Stage:   StageRepair,
			Msg:     "repaired transaction list could not be serialized",
			Snippet: snippet(strings.TrimSpace(src)),
			Err:     err,
		}
	}

	out := b.String()
	if !json.Valid([]byte(out)) {
		// Validation instead of a raw parser panic/exception surface: the
		// caller gets a structured error, never an unstructured one from the
		// JSON machinery.
		return "", &ParseError{
			Stage:   StageRepair,
			Msg:     "rewrite produced output that is still not valid JSON",
			Snippet: snippet(strings.TrimSpace(src)),
		}
	}
	return out, nil
}

// sgmlNode is one element recovered from the fragment. A node is either a
// leaf (value is set, children nil) or an aggregate (children set).
type sgmlNode struct {
	name     string
	value    string
	children []*sgmlNode
	leaf     bool
}

// parseFragment tokenizes an SGML fragment into a node tree, applying the
// implicit-close rule for leaf tags. Aggregates left open at end of input are
// closed implicitly; an opening tag that repeats the name of the currently
// open aggregate closes the previous one first, which is how unclosed sibling
// entry tags (STMTTRN after STMTTRN) are recovered.
func parseFragment(src string) (*sgmlNode, error) {
	root := &sgmlNode{name: ""}
	stack := []*sgmlNode{root}

	rest := src
	for {
		rest = strings.TrimLeft(rest, " \t\r\n")
		if rest == "" {
			break
		}
		if rest[0] != '<' {
			return nil, fmt.Errorf("unexpected text %q outside any element", snippet(rest))
		}

		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return nil, fmt.Errorf("unterminated tag %q", snippet(rest))
		}
		tag := rest[1:end]
		rest = rest[end+1:]

		if strings.HasPrefix(tag, "/") {
			name := strings.TrimSpace(tag[1:])
			var err error
			stack, err = closeElement(stack, name)
			if err != nil {
				return nil, err
			}
			continue
		}

		name := strings.TrimSpace(tag)
		if name == "" {
			return nil, fmt.Errorf("empty tag name")
		}

		// Repeated entry tag without a closer: the previous sibling is done.
		if top := stack[len(stack)-1]; top != root && top.name == name {
			stack = stack[:len(stack)-1]
		}

		// Rule 1: text up to the next tag boundary makes this a leaf.
		var text string
		if next := strings.IndexByte(rest, '<'); next >= 0 {
			text = rest[:next]
			rest = rest[next:]
		} else {
			text = rest
			rest = ""
		}
		text = strings.TrimSpace(text)

		parent := stack[len(stack)-1]
		node := &sgmlNode{name: name}
		parent.children = append(parent.children, node)
		if text != "" {
			node.leaf = true
			node.value = text
		} else {
			stack = append(stack, node)
		}
	}

	return root, nil
}

// closeElement pops the stack back through name. Intermediate aggregates
// still open when their ancestor closes are closed implicitly. A closing tag
// for a leaf that was already implicitly closed is dropped; a closing tag
// that matches nothing at all is an error.
func closeElement(stack []*sgmlNode, name string) ([]*sgmlNode, error) {
	for i := len(stack) - 1; i > 0; i-- {
		if stack[i].name == name {
			// An explicitly closed element with no content is an empty leaf.
			n := stack[i]
			if len(n.children) == 0 && !n.leaf {
				n.leaf = true
			}
			return stack[:i], nil
		}
	}

	// The element may have been a leaf closed implicitly by rule 1, in which
	// case its closing tag arrives after the stack already moved on.
	parent := stack[len(stack)-1]
	if n := len(parent.children); n > 0 && parent.children[n-1].name == name {
		return stack, nil
	}
	return nil, fmt.Errorf("closing tag </%s> matches no open element", name)
}

// writeObject serializes children as a JSON object, applying rules 2-4:
// quoted keys, array coercion for repeated sibling names, comma separation.
func writeObject(b *strings.Builder, children []*sgmlNode) error {
	groups := make(map[string][]*sgmlNode, len(children))
	order := make([]string, 0, len(children))
	for _, child := range children {
		if _, seen := groups[child.name]; !seen {
			order = append(order, child.name)
		}
		groups[child.name] = append(groups[child.name], child)
	}

	b.WriteByte('{')
	for i, name := range order {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeString(b, name); err != nil {
			return err
		}
		b.WriteByte(':')

		siblings := groups[name]
		if len(siblings) == 1 {
			if err := writeValue(b, siblings[0]); err != nil {
				return err
			}
			continue
		}

		b.WriteByte('[')
		for j, sibling := range siblings {
			if j > 0 {
				b.WriteByte(',')
			}
			if err := writeValue(b, sibling); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')
	return nil
}

func writeValue(b *strings.Builder, n *sgmlNode) error {
	if n.leaf {
		return writeString(b, n.value)
	}
	return writeObject(b, n.children)
}

func writeString(b *strings.Builder, s string) error {
	quoted, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to escape %q: %w", s, err)
	}
	b.Write(quoted)
	return nil
}
