// Command sqllint checks that every SQL string constant or variable starts
// with a unique "--sql <uuid>" audit marker. SQLRunner rejects statements
// without one, so this catches the mistake before it reaches a request.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	statementStart = regexp.MustCompile(`(?i)^(select|insert|update|delete|with|replace)\b`)
	markerLine     = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

// finding is one SQL literal, valid or not.
type finding struct {
	file    string
	line    int
	name    string
	marker  string
	problem string
}

func (f finding) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", f.file, f.line, f.problem, f.name)
}

type linter struct {
	fset     *token.FileSet
	seen     map[string]finding
	marked   []finding
	problems []finding
}

func newLinter() *linter {
	return &linter{fset: token.NewFileSet(), seen: map[string]finding{}}
}

func main() {
	list := flag.Bool("list", false, "print every marker with its declaration instead of only problems")
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	l := newLinter()
	for _, target := range targets {
		if err := l.walk(target); err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
	}
	if *list {
		l.report(os.Stdout)
	}
	if len(l.problems) > 0 {
		fmt.Fprintf(os.Stderr, "sqllint: %d invalid SQL audit markers\n", len(l.problems))
		for _, p := range l.problems {
			fmt.Fprintln(os.Stderr, "  "+p.String())
		}
		os.Exit(1)
	}
}

// walk lints a single .go file or every .go file below a directory.
func (l *linter) walk(target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if filepath.Ext(target) != ".go" {
			return nil
		}
		return l.file(target)
	}
	return filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			return nil
		}
		return l.file(path)
	})
}

func (l *linter) file(path string) error {
	file, err := parser.ParseFile(l.fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			text, err := literalText(lit.Value)
			if err != nil {
				continue
			}
			name := "_"
			if i < len(spec.Names) {
				name = spec.Names[i].Name
			}
			l.check(path, l.fset.Position(lit.Pos()).Line, name, text)
		}
		return true
	})
	return nil
}

// check classifies one string literal. Strings that are not SQL are ignored.
func (l *linter) check(path string, line int, name, text string) {
	text = strings.TrimSpace(text)
	head, body, _ := strings.Cut(text, "\n")
	head = strings.TrimSpace(head)

	f := finding{file: path, line: line, name: name}
	m := markerLine.FindStringSubmatch(head)
	switch {
	case m != nil:
		if !statementStart.MatchString(strings.TrimSpace(body)) {
			f.problem = "marker is not followed by a statement"
			l.problems = append(l.problems, f)
			return
		}
		f.marker = m[1]
	case strings.HasPrefix(head, "--sql"):
		f.problem = "malformed --sql marker"
		l.problems = append(l.problems, f)
		return
	case statementStart.MatchString(text):
		f.problem = "missing --sql <uuid> marker"
		l.problems = append(l.problems, f)
		return
	default:
		return
	}

	if first, dup := l.seen[f.marker]; dup {
		f.problem = fmt.Sprintf("duplicate marker %s (first used by %s at %s:%d)", f.marker, first.name, first.file, first.line)
		l.problems = append(l.problems, f)
		return
	}
	l.seen[f.marker] = f
	l.marked = append(l.marked, f)
}

// report prints the marker inventory sorted by marker.
func (l *linter) report(w io.Writer) {
	sorted := append([]finding(nil), l.marked...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].marker < sorted[j].marker })
	for _, f := range sorted {
		fmt.Fprintf(w, "%s  %s  %s:%d\n", f.marker, f.name, f.file, f.line)
	}
}

func literalText(v string) (string, error) {
	if strings.HasPrefix(v, "`") {
		return strings.Trim(v, "`"), nil
	}
	return strconv.Unquote(v)
}
