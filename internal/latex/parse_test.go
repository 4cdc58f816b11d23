package latex

import (
	"errors"
	"testing"
)

func TestParse_RoundTrip(t *testing.T) {
	tests := []string{
		`plain text`,
		`\includegraphics[width=0.5\linewidth]{figs/a.png}`,
		`\caption*{Starred}`,
		`\begin{figure*}[t]\centering x\end{figure*}`,
		`{group {nested}} after`,
		`a \\ b \\[2pt] c`,
		`\% not a comment`,
		`\begin{verbatim}\begin{unbalanced{\end{verbatim}`,
		`\verb|{| and \verb*+}+`,
		`\subfloat[on $[0,1]$ and [a]]{x}`,
	}
	for _, src := range tests {
		tree, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if got := tree.String(tree.Root()); got != src {
			t.Errorf("round trip: expected %q, got %q", src, got)
		}
	}
}

func TestParse_CommentsDropped(t *testing.T) {
	tree, err := Parse("a % comment { unbalanced\nb")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tree.String(tree.Root()); got != "a \nb" {
		t.Errorf("expected comment removed, got %q", got)
	}
}

func TestParse_CommandArgs(t *testing.T) {
	tree, err := Parse("\\caption[short]  {Long}\n{not an arg}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	root := tree.Node(tree.Root())
	cmd := root.Children[0]
	n := tree.Node(cmd)
	if n.Kind != KindCommand || n.Name != "caption" {
		t.Fatalf("expected caption command, got %v %q", n.Kind, n.Name)
	}
	if len(n.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(n.Args))
	}
	if !n.Args[0].Optional || n.Args[1].Optional {
		t.Errorf("unexpected arg kinds: %+v", n.Args)
	}
	if got := tree.ArgText(cmd, 0); got != "short" {
		t.Errorf("expected optional arg %q, got %q", "short", got)
	}
	if i := tree.ArgIndex(cmd, false, -1); i != 1 || tree.ArgText(cmd, i) != "Long" {
		t.Errorf("expected last required arg Long at 1, got %d", i)
	}
	if tree.ArgIndex(cmd, true, 1) != -1 {
		t.Error("expected no second optional arg")
	}
	if tree.ArgText(cmd, 5) != "" {
		t.Error("expected empty text for missing arg")
	}
}

func TestParse_UnclosedBracketIsText(t *testing.T) {
	tree, err := Parse(`\item[ unclosed {x}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := tree.Node(tree.Root()).Children[0]
	if n := tree.Node(cmd); len(n.Args) != 0 {
		t.Errorf("expected no args, got %d", len(n.Args))
	}
	if got := tree.String(tree.Root()); got != `\item[ unclosed {x}` {
		t.Errorf("unexpected serialization %q", got)
	}
}

func TestParse_BracketNesting(t *testing.T) {
	tests := []struct {
		src  string
		opt  string
		body string
	}{
		{`\subfloat[Accuracy on $[0,1]$]{\includegraphics{a}}`, `Accuracy on $[0,1]$`, `\includegraphics{a}`},
		{`\subfloat[see [12] and [3]]{b}`, `see [12] and [3]`, `b`},
		{`\subfloat[$x]$ tail]{c}`, `$x]$ tail`, `c`},
		{`\subfloat[\cite[p.~4]{k}]{d}`, `\cite[p.~4]{k}`, `d`},
	}
	for _, tt := range tests {
		tree, err := Parse(tt.src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.src, err)
		}
		cmd := tree.Node(tree.Root()).Children[0]
		i := tree.ArgIndex(cmd, true, 0)
		if i < 0 || tree.ArgText(cmd, i) != tt.opt {
			t.Errorf("%q: expected optional arg %q, got %q", tt.src, tt.opt, tree.ArgText(cmd, i))
		}
		j := tree.ArgIndex(cmd, false, 0)
		if j < 0 || tree.ArgText(cmd, j) != tt.body {
			t.Errorf("%q: expected required arg %q, got %q", tt.src, tt.body, tree.ArgText(cmd, j))
		}
	}
}

func TestParse_Verb(t *testing.T) {
	tree, err := Parse(`\caption{Use \verb|{| to open}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := tree.Node(tree.Root()).Children[0]
	if got := tree.ArgText(cmd, 0); got != `Use \verb|{| to open` {
		t.Errorf("unexpected caption text %q", got)
	}

	// no closing delimiter on the line: an ordinary command
	tree, err = Parse("\\verb|x\n|")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n := tree.Node(tree.Node(tree.Root()).Children[0]); n.Kind != KindCommand || n.Name != "verb" {
		t.Errorf("expected verb command, got %v %q", n.Kind, n.Name)
	}
}

func TestParse_Environment(t *testing.T) {
	tree, err := Parse(`\begin{subfigure}[b]{0.5\textwidth}\includegraphics{a}\caption{A}\end{subfigure}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	env := tree.Node(tree.Root()).Children[0]
	n := tree.Node(env)
	if n.Kind != KindEnv || n.Name != "subfigure" || len(n.Args) != 2 || len(n.Children) != 2 {
		t.Fatalf("unexpected env node: %+v", n)
	}

	var caption NodeID = NoNode
	for _, id := range tree.Descendants(env) {
		if tree.Is(id, "caption") {
			caption = id
		}
	}
	if caption == NoNode {
		t.Fatal("caption not found")
	}
	anc := tree.Ancestors(caption)
	if len(anc) != 1 || anc[0] != env {
		t.Errorf("expected ancestors [%d], got %v", env, anc)
	}
	if tree.Parent(env) != tree.Root() || tree.Parent(tree.Root()) != NoNode {
		t.Error("unexpected parent links")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		src  string
		want error
	}{
		{`a}`, ErrUnbalanced},
		{`{a`, ErrUnbalanced},
		{`\caption{a`, ErrUnbalanced},
		{`\begin{figure}a`, ErrUnclosedEnv},
		{`\begin{figure}a\end{table}`, ErrUnexpectedEnd},
		{`\end{figure}`, ErrUnexpectedEnd},
		{`\begin{verbatim}never`, ErrUnclosedEnv},
		{`\begin x`, ErrBadBegin},
	}
	for _, tt := range tests {
		tree, err := Parse(tt.src)
		if !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q): expected %v, got %v", tt.src, tt.want, err)
		}
		if tree != nil {
			t.Errorf("Parse(%q): expected no tree on error", tt.src)
		}
	}
}

func TestWalk_SkipSubtree(t *testing.T) {
	tree, err := Parse(`\a{\b{\c}}\d`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var names []string
	tree.Walk(tree.Root(), func(id NodeID) bool {
		n := tree.Node(id)
		if n.Kind == KindCommand {
			names = append(names, n.Name)
		}
		return n.Name != "b"
	})
	want := []string{"a", "b", "d"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
		}
	}
}

func TestCaptionText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  A   cat\n\tsleeping ", "A cat sleeping"},
		{"café", "café"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CaptionText(tt.in); got != tt.want {
			t.Errorf("CaptionText(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindEnv.String() != "env" || Kind(99).String() != "unknown" {
		t.Error("unexpected kind names")
	}
}
