package cli

import (
	"bytes"
	"context"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func Test_Command_Name_Is_The_First_Word_Of_Usage(t *testing.T) {
	t.Parallel()

	cmd := &Command{Usage: "run [flags]"}
	assert.Equal(t, "run", cmd.Name())

	cmd = &Command{Usage: "config init [flags]"}
	assert.Equal(t, "config", cmd.Name())
}

func Test_Command_HelpLine_Pads_Usage_Before_Short(t *testing.T) {
	t.Parallel()

	cmd := &Command{Usage: "ingest <path>", Short: "extend the interner"}
	line := cmd.HelpLine()
	assert.Contains(t, line, "ingest <path>")
	assert.Contains(t, line, "extend the interner")
}

func Test_Command_Run_Reports_Flag_Parse_Errors(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer

	cmd := &Command{
		Flags: flag.NewFlagSet("x", flag.ContinueOnError),
		Usage: "x [flags]",
		Exec: func(context.Context, *IO, []string) error {
			t.Fatal("Exec should not run when flag parsing fails")
			return nil
		},
	}

	code := cmd.Run(context.Background(), NewIO(&out, &errOut), []string{"--not-a-real-flag"})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "error:")
}

func Test_Command_Run_Returns_Exec_Error_Exit_Code(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer

	cmd := &Command{
		Flags: flag.NewFlagSet("x", flag.ContinueOnError),
		Usage: "x [flags]",
		Exec: func(context.Context, *IO, []string) error {
			return assert.AnError
		},
	}

	code := cmd.Run(context.Background(), NewIO(&out, &errOut), nil)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), assert.AnError.Error())
}

func Test_IO_Println_And_ErrPrintln_Write_To_Separate_Streams(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer

	io := NewIO(&out, &errOut)
	io.Println("hello")
	io.ErrPrintln("oops")

	assert.Equal(t, "hello\n", out.String())
	assert.Equal(t, "oops\n", errOut.String())
}
