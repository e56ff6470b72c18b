package export

import (
	"strings"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/chat"
)

const (
	// FileName is the suggested download name for the transcript.
	FileName = "chatbot_report.tex"
	// ContentType matches what browsers expect for a plain .tex download.
	ContentType = "text/plain; charset=utf-8"
	// CompileHint tells users how to turn the transcript into a PDF.
	CompileHint = "Compile the LaTeX file with `latexmk -pdf chatbot_report.tex` to generate a PDF."
)

const latexPreamble = `
\documentclass[a4paper,12pt]{article}
\usepackage[utf8]{inputenc}
\usepackage[T1]{fontenc}
\usepackage{lmodern}
\usepackage{geometry}
\geometry{margin=1in}
\usepackage{enumitem}
\usepackage{xcolor}
\usepackage{parskip}

\begin{document}

\begin{center}
{\Large \textbf{PDF Chatbot Conversation Report}} \\
\vspace{0.5cm}
{\small Generated on \today}
\end{center}

\section*{Conversation History}
\begin{itemize}[leftmargin=*]
`

const latexPostamble = `
\end{itemize}

\end{document}
`

// Options controls transcript rendering.
type Options struct {
	// Escape quotes LaTeX special characters in questions and answers.
	// When false, values are written verbatim and markup in them is live.
	Escape bool
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`$`, `\$`,
	`&`, `\&`,
	`#`, `\#`,
	`%`, `\%`,
	`_`, `\_`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// EscapeLaTeX quotes the characters LaTeX treats as markup.
func EscapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}

// RenderLaTeX writes one Question item and one Answer item per entry, in order,
// inside a fixed article template.
func RenderLaTeX(entries []chat.Entry, opts Options) []byte {
	value := func(s string) string {
		if opts.Escape {
			return EscapeLaTeX(s)
		}
		return s
	}

	var b strings.Builder
	b.WriteString(latexPreamble)
	for _, entry := range entries {
		b.WriteString(`\item \textbf{Question:} `)
		b.WriteString(value(entry.Question))
		b.WriteString("\n")
		b.WriteString(`\item \textbf{Answer:} `)
		b.WriteString(value(entry.Answer))
		b.WriteString("\n")
	}
	b.WriteString(latexPostamble)
	return []byte(b.String())
}
