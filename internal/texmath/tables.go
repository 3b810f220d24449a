package texmath

func set(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, name := range names {
		m[name] = struct{}{}
	}
	return m
}

// symbols take no arguments.
var symbols = set(
	// Greek.
	`\alpha`, `\beta`, `\gamma`, `\delta`, `\epsilon`, `\varepsilon`, `\zeta`,
	`\eta`, `\theta`, `\vartheta`, `\iota`, `\kappa`, `\lambda`, `\mu`, `\nu`,
	`\xi`, `\omicron`, `\pi`, `\varpi`, `\rho`, `\varrho`, `\sigma`,
	`\varsigma`, `\tau`, `\upsilon`, `\phi`, `\varphi`, `\chi`, `\psi`,
	`\omega`, `\Gamma`, `\Delta`, `\Theta`, `\Lambda`, `\Xi`, `\Pi`, `\Sigma`,
	`\Upsilon`, `\Phi`, `\Psi`, `\Omega`,
	// Large operators.
	`\sum`, `\prod`, `\coprod`, `\int`, `\iint`, `\iiint`, `\oint`, `\bigcup`,
	`\bigcap`, `\bigoplus`, `\bigotimes`, `\bigodot`, `\bigvee`, `\bigwedge`,
	`\biguplus`, `\bigsqcup`,
	// Named functions.
	`\lim`, `\limsup`, `\liminf`, `\sup`, `\inf`, `\max`, `\min`, `\det`,
	`\gcd`, `\log`, `\ln`, `\lg`, `\exp`, `\sin`, `\cos`, `\tan`, `\cot`,
	`\sec`, `\csc`, `\arcsin`, `\arccos`, `\arctan`, `\sinh`, `\cosh`, `\tanh`,
	`\coth`, `\arg`, `\deg`, `\dim`, `\hom`, `\ker`, `\Pr`, `\mod`, `\bmod`,
	// Binary operators.
	`\pm`, `\mp`, `\times`, `\div`, `\cdot`, `\ast`, `\star`, `\circ`,
	`\bullet`, `\oplus`, `\ominus`, `\otimes`, `\oslash`, `\odot`, `\cup`,
	`\cap`, `\setminus`, `\wedge`, `\vee`, `\land`, `\lor`, `\sqcup`, `\sqcap`,
	`\uplus`, `\amalg`, `\dagger`, `\ddagger`, `\wr`, `\diamond`,
	// Relations.
	`\le`, `\leq`, `\ge`, `\geq`, `\neq`, `\ne`, `\equiv`, `\approx`, `\sim`,
	`\simeq`, `\cong`, `\propto`, `\ll`, `\gg`, `\subset`, `\supset`,
	`\subseteq`, `\supseteq`, `\in`, `\notin`, `\ni`, `\perp`, `\parallel`,
	`\mid`, `\models`, `\vdash`, `\dashv`, `\prec`, `\succ`, `\preceq`,
	`\succeq`, `\doteq`, `\asymp`, `\bowtie`, `\leqslant`, `\geqslant`,
	`\nleq`, `\ngeq`, `\lesssim`, `\gtrsim`, `\triangleq`, `\coloneqq`,
	// Arrows.
	`\to`, `\gets`, `\rightarrow`, `\leftarrow`, `\Rightarrow`, `\Leftarrow`,
	`\leftrightarrow`, `\Leftrightarrow`, `\mapsto`, `\implies`, `\impliedby`,
	`\iff`, `\longrightarrow`, `\longleftarrow`, `\Longrightarrow`,
	`\Longleftarrow`, `\longleftrightarrow`, `\Longleftrightarrow`,
	`\longmapsto`, `\hookrightarrow`, `\hookleftarrow`, `\rightharpoonup`,
	`\leftharpoonup`, `\rightleftharpoons`, `\nearrow`, `\searrow`,
	`\swarrow`, `\nwarrow`,
	// Miscellaneous.
	`\infty`, `\partial`, `\nabla`, `\forall`, `\exists`, `\nexists`, `\neg`,
	`\lnot`, `\emptyset`, `\varnothing`, `\aleph`, `\beth`, `\hbar`, `\ell`,
	`\Re`, `\Im`, `\wp`, `\angle`, `\triangle`, `\square`, `\prime`,
	`\ldots`, `\cdots`, `\vdots`, `\ddots`, `\dots`, `\dotsc`, `\dotsb`,
	`\colon`, `\top`, `\bot`, `\flat`, `\natural`, `\sharp`, `\clubsuit`,
	`\diamondsuit`, `\heartsuit`, `\spadesuit`, `\imath`, `\jmath`,
	`\therefore`, `\because`, `\checkmark`, `\S`, `\P`,
	// Spacing and style.
	`\quad`, `\qquad`, `\enspace`, `\thinspace`, `\medspace`, `\thickspace`,
	`\negthinspace`, `\displaystyle`, `\textstyle`, `\scriptstyle`,
	`\scriptscriptstyle`, `\nonumber`, `\notag`, `\not`, `\cr`,
	`\,`, `\:`, `\;`, `\!`, `\ `, `\\`, `\#`, `\$`, `\%`, `\&`, `\_`,
)

// delimiters may follow \left, \right, \middle and the \big family.
var delimiters = set(
	`\{`, `\}`, `\|`, `\langle`, `\rangle`, `\lceil`, `\rceil`, `\lfloor`,
	`\rfloor`, `\lvert`, `\rvert`, `\lVert`, `\rVert`, `\vert`, `\Vert`,
	`\backslash`, `\uparrow`, `\downarrow`, `\Uparrow`, `\Downarrow`,
	`\updownarrow`, `\Updownarrow`, `\lbrace`, `\rbrace`, `\lbrack`,
	`\rbrack`, `\lgroup`, `\rgroup`,
)

var sizedDelimiters = set(
	`\big`, `\Big`, `\bigg`, `\Bigg`, `\bigl`, `\bigr`, `\Bigl`, `\Bigr`,
	`\biggl`, `\biggr`, `\Biggl`, `\Biggr`, `\bigm`, `\Bigm`,
)

// mathArgs maps commands to their number of required math arguments.
var mathArgs = map[string]int{
	`\frac`: 2, `\dfrac`: 2, `\tfrac`: 2, `\cfrac`: 2, `\binom`: 2,
	`\dbinom`: 2, `\tbinom`: 2, `\overset`: 2, `\underset`: 2, `\stackrel`: 2,
	`\hat`: 1, `\bar`: 1, `\vec`: 1, `\dot`: 1, `\ddot`: 1, `\tilde`: 1,
	`\acute`: 1, `\grave`: 1, `\breve`: 1, `\check`: 1, `\widehat`: 1,
	`\widetilde`: 1, `\overline`: 1, `\underline`: 1, `\overbrace`: 1,
	`\underbrace`: 1, `\overrightarrow`: 1, `\overleftarrow`: 1, `\boxed`: 1,
	`\mathbf`: 1, `\mathit`: 1, `\mathrm`: 1, `\mathbb`: 1, `\mathcal`: 1,
	`\mathfrak`: 1, `\mathsf`: 1, `\mathtt`: 1, `\mathscr`: 1,
	`\boldsymbol`: 1, `\bm`: 1, `\pmb`: 1, `\cancel`: 1, `\phantom`: 1,
	`\pmod`: 1,
}

// textArgs take one argument typeset as text.
var textArgs = set(
	`\text`, `\textrm`, `\textbf`, `\textit`, `\texttt`, `\textsf`,
	`\textnormal`, `\mbox`, `\operatorname`, `\tag`, `\label`,
)

var environments = set(
	"matrix", "pmatrix", "bmatrix", "Bmatrix", "vmatrix", "Vmatrix",
	"smallmatrix", "cases", "aligned", "gathered", "split", "array",
	"align", "align*", "alignat", "alignat*", "gather", "gather*",
	"equation", "equation*",
)
