package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing for the code.
func (c *Code) Disassemble() string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; === %s ===\n", c.Name))
	if c.Filename != "" {
		sb.WriteString(fmt.Sprintf("; File: %s\n", c.Filename))
	}

	// Parameters
	if len(c.ArgNames) > 0 {
		sb.WriteString(fmt.Sprintf("; Parameters (%d): %s", len(c.ArgNames), strings.Join(c.ArgNames, ", ")))
		if len(c.Defaults) > 0 {
			sb.WriteString(fmt.Sprintf(" [%d defaults]", len(c.Defaults)))
		}
		sb.WriteString("\n")
	}
	if len(c.CellVars) > 0 {
		sb.WriteString(fmt.Sprintf("; Cells: %s\n", strings.Join(c.CellVars, ", ")))
	}
	if len(c.FreeVars) > 0 {
		sb.WriteString(fmt.Sprintf("; Free: %s\n", strings.Join(c.FreeVars, ", ")))
	}
	sb.WriteString("\n")

	// Constants
	if len(c.Consts) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range c.Consts {
			display := FormatConst(v)
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			display = strings.ReplaceAll(display, "\n", "\\n")
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
		sb.WriteString("\n")
	}

	// Code section
	targets := c.jumpTargets()
	sb.WriteString("; Code:\n")
	for i, in := range c.Instructions {
		marker := "  "
		if targets[i] {
			marker = ">>"
		}
		if in.Line > 0 {
			sb.WriteString(fmt.Sprintf("%s %4d  %-36s ; line %d\n", marker, i, in.String(), in.Line))
		} else {
			sb.WriteString(fmt.Sprintf("%s %4d  %s\n", marker, i, in.String()))
		}
	}

	return sb.String()
}

// DisassembleInstruction returns a human-readable representation of a single instruction.
func (c *Code) DisassembleInstruction(index int) string {
	if index < 0 || index >= len(c.Instructions) {
		return "<end of code>"
	}
	return c.Instructions[index].String()
}

func (c *Code) jumpTargets() map[int]bool {
	targets := make(map[int]bool)
	for _, in := range c.Instructions {
		if in.Op.IsJump() && in.JumpTo >= 0 {
			targets[in.JumpTo] = true
		}
	}
	return targets
}

// DisassembleModule lists every function of a module, nested code included.
func DisassembleModule(m *Module) string {
	var sb strings.Builder
	seen := make(map[*Code]bool)
	var walk func(c *Code)
	walk = func(c *Code) {
		if seen[c] {
			return
		}
		seen[c] = true
		sb.WriteString(c.Disassemble())
		sb.WriteString("\n")
		for _, k := range c.Consts {
			if inner, ok := k.(*Code); ok {
				walk(inner)
			}
		}
	}
	for _, fn := range m.Functions {
		walk(fn)
	}
	return sb.String()
}
