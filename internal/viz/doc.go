// Package viz renders bifurcation diagrams for the terminal.
//
//   - [Preview]: asciigraph plot of the first state component against the
//     parameter, stable runs green and unstable runs red
//   - [Canvas]: Braille pixel canvas, 2x4 dots per cell, used by the
//     explorer for a higher resolution diagram
//   - [Theme] and [Styles]: lipgloss colour schemes shared with the TUI
package viz
