package style

// Directive is a pair of raw LaTeX strings wrapping content decorated by a
// tag.
type Directive struct {
	Prefix string
	Suffix string
}

// Scope tells where directive could be applied.
type Scope int

const (
	// ScopeInline directives wrap a run of text.
	ScopeInline Scope = iota
	// ScopeBlock directives wrap whole paragraph or quote.
	ScopeBlock
)

var inlineDirectives = map[Tag]Directive{
	TagBlue:       {Prefix: `{\color{blue}`, Suffix: `}`},
	TagGreen:      {Prefix: `{\color{green}`, Suffix: `}`},
	TagOrange:     {Prefix: `{\color{orange}`, Suffix: `}`},
	TagRed:        {Prefix: `{\color{red}`, Suffix: `}`},
	TagItalic:     {Prefix: `\textit{`, Suffix: `}`},
	TagStrong:     {Prefix: `\textbf{`, Suffix: `}`},
	TagUnderline:  {Prefix: `\underline{`, Suffix: `}`},
	TagMonospace:  {Prefix: `\texttt{`, Suffix: `}`},
	TagSmallest:   {Prefix: `{\footnotesize{}`, Suffix: `}`},
	TagSmaller:    {Prefix: `{\small{}`, Suffix: `}`},
	TagNormalSize: {Prefix: `{\normalsize{}`, Suffix: `}`},
	TagLarger:     {Prefix: `{\large{}`, Suffix: `}`},
	TagLargest:    {Prefix: `{\Large{}`, Suffix: `}`},
}

var blockDirectives = map[Tag]Directive{
	TagCenter:     {Prefix: `\begin{center}`, Suffix: `\end{center}`},
	TagMarginLeft: {Prefix: `\begin{center}`, Suffix: `\end{center}`},
}

// Lookup returns directive for the tag in requested scope. Ad hoc color tags
// have no fixed directive, see Palette.Directive.
func Lookup(t Tag, scope Scope) (Directive, bool) {
	var d Directive
	var ok bool
	switch scope {
	case ScopeInline:
		d, ok = inlineDirectives[t]
	case ScopeBlock:
		d, ok = blockDirectives[t]
	}
	return d, ok
}
