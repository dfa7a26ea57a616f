package cli

import (
	"context"
	"errors"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines one fold subcommand with unified flag parsing and help
// generation, the way the teacher's *Command type does for tk.
type Command struct {
	// Flags holds command-specific flags. Its FlagSet name is unused;
	// command identity comes from the first word of Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "fold" in help, e.g.
	// "run [flags]".
	Usage string

	// Short is a one-line description for the top-level help listing.
	Short string

	// Long is the full description for "fold <cmd> --help". Falls back to
	// Short when empty.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name: the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns one line for the top-level command listing.
func (c *Command) HelpLine() string {
	return padRight(c.Usage, 28) + c.Short
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s + "  "
	}

	return s + strings.Repeat(" ", width-len(s))
}

// PrintHelp prints "fold <cmd> --help" output.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: fold", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command, returning its exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)

		return exitCodeFor(err)
	}

	return 0
}
