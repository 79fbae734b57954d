// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/beevik/cmd"

var cmds *cmd.Tree

// A helpTopic is a command or command group listed by the help command.
type helpTopic struct {
	path  string // full command path, e.g. "assemble file"
	brief string
}

var helpTopics []helpTopic

func addCommand(t *cmd.Tree, group string, d cmd.CommandDescriptor) {
	path := d.Name
	if group != "" {
		path = group + " " + d.Name
	}
	helpTopics = append(helpTopics, helpTopic{path: path, brief: d.Brief})
	t.AddCommand(d)
}

func addSubtree(t *cmd.Tree, d cmd.TreeDescriptor) *cmd.Tree {
	helpTopics = append(helpTopics, helpTopic{path: d.Name, brief: d.Brief})
	return t.AddSubtree(d)
}

func init() {
	root := cmd.NewTree(cmd.TreeDescriptor{Name: "gbasm"})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:        "help",
		Description: "Display help for a command.",
		Usage:       "help [<command>]",
		Data:        (*Host).cmdHelp,
	})

	// Assemble commands
	as := addSubtree(root, cmd.TreeDescriptor{Name: "assemble", Brief: "Assemble commands"})
	addCommand(as, "assemble", cmd.CommandDescriptor{
		Name:  "line",
		Brief: "Assemble a single instruction into memory",
		Description: "Assemble one SM83 instruction at the specified address" +
			" and store the machine code in memory. If the address is $," +
			" the instruction is placed after the previously assembled one.",
		Usage: "assemble line <address> <instruction>",
		Data:  (*Host).cmdAssembleLine,
	})
	addCommand(as, "assemble", cmd.CommandDescriptor{
		Name:  "file",
		Brief: "Assemble a file from disk and save the binary to disk",
		Description: "Run the cross-assembler on the specified file," +
			" producing a binary file and source map file if successful." +
			" The code is also loaded into memory. If you want verbose" +
			" output, specify true as a second parameter.",
		Usage: "assemble file <filename> [<verbose>]",
		Data:  (*Host).cmdAssembleFile,
	})

	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "define",
		Brief: "Define a symbol",
		Description: "Bind a symbol to the value of an expression. The symbol" +
			" may then be used in expressions and in assembled instructions.",
		Usage: "define <name> <expression>",
		Data:  (*Host).cmdDefine,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "disassemble",
		Brief: "Disassemble code",
		Description: "Disassemble machine code starting at the requested" +
			" address. The number of instruction lines to display may be" +
			" specified as an option. If no address is specified, the" +
			" disassembly continues from where the last disassembly left off.",
		Usage: "disassemble [<address>] [<lines>]",
		Data:  (*Host).cmdDisassemble,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "evaluate",
		Brief: "Evaluate an expression",
		Description: "Evaluate a mathematical expression. Symbols defined" +
			" with the define command or by an assembled file may be used.",
		Usage: "evaluate <expression>",
		Data:  (*Host).cmdEval,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "load",
		Brief: "Load a binary file",
		Description: "Load the contents of a binary file into memory. If a" +
			" source map file with the same name exists, it is loaded too" +
			" and provides the load address. Otherwise the address must" +
			" be specified.",
		Usage: "load <filename> [<address>]",
		Data:  (*Host).cmdLoad,
	})

	// Memory commands
	mem := addSubtree(root, cmd.TreeDescriptor{Name: "memory", Brief: "Memory commands"})
	addCommand(mem, "memory", cmd.CommandDescriptor{
		Name:  "dump",
		Brief: "Dump memory at address",
		Description: "Dump the contents of memory starting from the" +
			" specified address. The number of bytes to dump may be" +
			" specified as an option.",
		Usage: "memory dump <address> [<bytes>]",
		Data:  (*Host).cmdMemoryDump,
	})
	addCommand(mem, "memory", cmd.CommandDescriptor{
		Name:  "set",
		Brief: "Set memory at address",
		Description: "Set the contents of memory starting from the specified" +
			" address. The values to assign should be a series of" +
			" space-separated byte values.",
		Usage: "memory set <address> <byte> [<byte> ...]",
		Data:  (*Host).cmdMemorySet,
	})

	addCommand(root, "", cmd.CommandDescriptor{
		Name:        "quit",
		Brief:       "Quit the program",
		Description: "Quit the program.",
		Usage:       "quit",
		Data:        (*Host).cmdQuit,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "reset",
		Brief: "Clear memory and symbols",
		Description: "Clear all memory, forget every defined symbol and" +
			" discard the loaded source map.",
		Usage: "reset",
		Data:  (*Host).cmdReset,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "set",
		Brief: "Set a configuration variable",
		Description: "Set the value of a configuration variable. To see the" +
			" current values of all configuration variables, type set" +
			" without any arguments.",
		Usage: "set [<var> <value>]",
		Data:  (*Host).cmdSet,
	})
	addCommand(root, "", cmd.CommandDescriptor{
		Name:  "symbols",
		Brief: "List symbols",
		Description: "List every defined symbol and its value, including the" +
			" labels of the most recently assembled or loaded file.",
		Usage: "symbols",
		Data:  (*Host).cmdSymbols,
	})

	// Add command shortcuts.
	root.AddShortcut("a", "assemble line")
	root.AddShortcut("af", "assemble file")
	root.AddShortcut("d", "disassemble")
	root.AddShortcut("e", "evaluate")
	root.AddShortcut("m", "memory dump")
	root.AddShortcut("ms", "memory set")
	root.AddShortcut("?", "help")

	cmds = root
}
