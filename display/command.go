package display

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teranos/ctxeng/errors"
)

// ShouldOutputJSON reports whether cmd should print JSON: an explicit --json
// on the command or root wins, otherwise agent callers get JSON.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return IsAgentCaller()
	}
	for _, flags := range []*pflag.FlagSet{cmd.Flags(), cmd.Root().PersistentFlags()} {
		if f := flags.Lookup("json"); f != nil && f.Changed {
			return f.Value.String() == "true"
		}
	}
	return IsAgentCaller()
}

// OutputJSON writes v to w as JSON followed by a newline.
func OutputJSON(w io.Writer, v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Table renders rows under header to w. Empty tables print nothing.
func Table(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	data := pterm.TableData{header}
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render table")
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
